// Package document 负责证件图片的识别与字段归一化
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/weibaohui/insurebot/config"
	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/pkg/extractor"
	"github.com/weibaohui/insurebot/internal/utils"
	"k8s.io/klog/v2"
)

// Recognizer 识别服务客户端
type Recognizer interface {
	Parse(ctx context.Context, ep config.RecognitionEndpoint, filePath string) ([]byte, error)
}

type Service struct {
	recognizer Recognizer
	tempDir    string
	endpoints  config.RecognitionEndpoints
}

func NewService(recognizer Recognizer, cfg *config.Config) *Service {
	tempDir := cfg.Recognition.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Service{
		recognizer: recognizer,
		tempDir:    tempDir,
		endpoints:  cfg.Recognition.Endpoints,
	}
}

// ExtractIdentity 识别护照
func (s *Service) ExtractIdentity(ctx context.Context, image []byte) *model.ExtractedData {
	return s.extract(ctx, model.DocumentIdentity, s.endpoints.Identity, image)
}

// ExtractVehicleFront 识别行驶证正面
func (s *Service) ExtractVehicleFront(ctx context.Context, image []byte) *model.ExtractedData {
	return s.extract(ctx, model.DocumentVehicleFront, s.endpoints.VehicleFront, image)
}

// ExtractVehicleBack 识别行驶证背面（车主信息）
func (s *Service) ExtractVehicleBack(ctx context.Context, image []byte) *model.ExtractedData {
	return s.extract(ctx, model.DocumentVehicleBack, s.endpoints.VehicleBack, image)
}

func (s *Service) extract(ctx context.Context, kind model.DocumentKind, ep config.RecognitionEndpoint, image []byte) *model.ExtractedData {
	if len(image) == 0 {
		return failed(kind, fmt.Errorf("empty image"))
	}

	path := filepath.Join(s.tempDir, uuid.New().String()+".jpg")
	if err := os.WriteFile(path, image, 0600); err != nil {
		klog.Errorf("写入临时图片失败: kind=%s, error=%v", kind, err)
		return failed(kind, fmt.Errorf("failed to write temp image: %w", err))
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			klog.Warningf("删除临时图片失败: path=%s, error=%v", path, err)
		}
	}()

	raw, err := s.recognizer.Parse(ctx, ep, path)
	if err != nil {
		klog.Errorf("证件识别失败: kind=%s, endpoint=%s/%s, error=%v", kind, ep.Account, ep.Name, err)
		return failed(kind, err)
	}

	result := extractor.Extract(raw)
	data := &model.ExtractedData{
		DocumentKind: kind,
		Fields:       remap(kind, result.Fields),
		RawPayload:   string(raw),
	}
	if result.Parsed() {
		data.Confidence = 1.0
	}
	klog.V(6).Infof("证件识别完成: kind=%s, source=%s, confidence=%.1f, fields=%s",
		kind, result.Source, data.Confidence, utils.ToJSON(data.Fields))
	return data
}

func failed(kind model.DocumentKind, err error) *model.ExtractedData {
	return &model.ExtractedData{
		DocumentKind: kind,
		Fields:       map[string]string{},
		Confidence:   0,
		RawPayload:   err.Error(),
	}
}
