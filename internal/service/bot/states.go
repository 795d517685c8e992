package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/service/policy"
	"gorm.io/datatypes"
	"k8s.io/klog/v2"
)

// StateHandlerFunc 函数形式的状态处理器
type StateHandlerFunc func(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error)

func (f StateHandlerFunc) Handle(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	return f(ctx, sess, msg)
}

// states 全部状态处理器共享的依赖
type states struct {
	transport    Transport
	documents    DocumentExtractor
	generator    TextGenerator
	policyWriter PolicyWriter

	price        float64
	currency     string
	aiWelcome    bool
	now          func() time.Time
	policyNumber func() string
}

// NewPolicyNumber 生成 POL-XXXXXXXX 格式的保单号
func NewPolicyNumber() string {
	return "POL-" + strings.ToUpper(uuid.New().String()[:8])
}

// send 发送失败只记录日志，不中断流程
func (s *states) send(ctx context.Context, chatID int64, text string) {
	if err := s.transport.SendText(ctx, chatID, text); err != nil {
		klog.Errorf("发送消息失败: chatID=%d, error=%v", chatID, err)
	}
}

func (s *states) download(ctx context.Context, fileID string) ([]byte, error) {
	data, err := s.transport.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	return data, nil
}

func (s *states) entry(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	welcome := msgWelcome
	if s.aiWelcome && s.generator != nil {
		greeting := s.generator.Generate(ctx,
			"Generate a friendly welcome message for a car insurance bot. Keep it professional but warm.", "")
		if greeting != "" {
			welcome = greeting + "\n\n" + msgWelcome
		}
	}
	s.send(ctx, sess.ChatID, welcome)
	return model.StateWaitingIdentityDoc, nil
}

func (s *states) waitingIdentity(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	if !msg.HasImage() {
		klog.V(6).Infof("等待护照照片，收到非图片消息: chatID=%d", sess.ChatID)
		s.send(ctx, sess.ChatID, msgAskIdentity)
		return model.StateWaitingIdentityDoc, nil
	}

	image, err := s.download(ctx, msg.ImageRef)
	if err != nil {
		return "", err
	}

	extracted := s.documents.ExtractIdentity(ctx, image)
	if !extracted.Succeeded() {
		klog.V(6).Infof("护照识别失败，提示重试: chatID=%d", sess.ChatID)
		s.send(ctx, sess.ChatID, msgIdentityFailed)
		return model.StateWaitingIdentityDoc, nil
	}

	sess.RawIdentityDocumentText = extracted.RawPayload
	sess.ExtractedIdentity = extracted
	s.send(ctx, sess.ChatID, identitySummary(extracted.Fields))
	return model.StateWaitingVehicleDoc, nil
}

func (s *states) waitingVehicle(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	if !msg.HasImage() && msg.Normalized() == keywordDone {
		return s.finishVehicle(ctx, sess)
	}

	if !msg.HasImage() {
		s.send(ctx, sess.ChatID, msgVehicleInstruction)
		return model.StateWaitingVehicleDoc, nil
	}

	image, err := s.download(ctx, msg.ImageRef)
	if err != nil {
		return "", err
	}

	ref := msg.ImageRef
	if sess.VehicleDocFrontRef == nil {
		front := s.documents.ExtractVehicleFront(ctx, image)
		if !front.Succeeded() {
			s.send(ctx, sess.ChatID, msgVehicleFailed)
			return model.StateWaitingVehicleDoc, nil
		}
		sess.VehicleDocFrontRef = &ref
		sess.ExtractedVehicleFront = front
		s.send(ctx, sess.ChatID, vehicleExtractedMessage(front))
		s.send(ctx, sess.ChatID, msgFrontProcessed)
		return model.StateWaitingVehicleDoc, nil
	}

	// 已有正面时新的图片一律视为背面，重复上传会覆盖上一张背面
	back := s.documents.ExtractVehicleBack(ctx, image)
	if !back.Succeeded() {
		s.send(ctx, sess.ChatID, msgVehicleFailed)
		return model.StateWaitingVehicleDoc, nil
	}
	sess.VehicleDocBackRef = &ref
	sess.ExtractedVehicleBack = back
	s.send(ctx, sess.ChatID, ownerExtractedMessage(back, false))
	s.send(ctx, sess.ChatID, msgBackProcessed)
	return model.StateWaitingVehicleDoc, nil
}

func (s *states) finishVehicle(ctx context.Context, sess *model.Session) (model.ConversationState, error) {
	if sess.VehicleDocFrontRef == nil {
		s.send(ctx, sess.ChatID, msgVehicleNoFront)
		return model.StateWaitingVehicleDoc, nil
	}

	if sess.VehicleDocBackRef == nil {
		owner := s.ownerFromFront(ctx, sess)
		switch owner.Outcome {
		case Produced:
			sess.ExtractedVehicleBack = owner.Value
			s.send(ctx, sess.ChatID, ownerExtractedMessage(owner.Value, true))
		case Absent:
			klog.Warningf("单面行驶证未能提取车主信息: chatID=%d, reason=%v", sess.ChatID, owner.Err)
		case Fatal:
			return "", owner.Err
		}
	}

	klog.V(6).Infof("车辆证件收集完成: chatID=%d, front=%v, back=%v",
		sess.ChatID, sess.ExtractedVehicleFront != nil, sess.ExtractedVehicleBack != nil)
	s.send(ctx, sess.ChatID, fullSummary(sess))
	return model.StateWaitingConfirm, nil
}

// ownerFromFront 用正面图片再按背面识别一次，尽力补全车主信息
func (s *states) ownerFromFront(ctx context.Context, sess *model.Session) Result[*model.ExtractedData] {
	image, err := s.download(ctx, *sess.VehicleDocFrontRef)
	if err != nil {
		if ctx.Err() != nil {
			return Failed[*model.ExtractedData](ctx.Err())
		}
		return Missing[*model.ExtractedData](err)
	}

	owner := s.documents.ExtractVehicleBack(ctx, image)
	if ctx.Err() != nil {
		return Failed[*model.ExtractedData](ctx.Err())
	}
	if !owner.Succeeded() || len(owner.Fields) == 0 {
		return Missing[*model.ExtractedData](fmt.Errorf("owner extraction produced no fields: %s", owner.RawPayload))
	}
	return Found(owner)
}

func (s *states) waitingConfirmation(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	switch msg.Normalized() {
	case keywordNo:
		sess.ClearDocuments()
		sess.DataConfirmed = false
		s.send(ctx, sess.ChatID, msgStartOver)
		return model.StateWaitingIdentityDoc, nil
	case keywordYes:
		sess.DataConfirmed = true
		s.send(ctx, sess.ChatID, priceMessage(s.price, s.currency))
		return model.StatePriceConfirmation, nil
	default:
		s.send(ctx, sess.ChatID, msgConfirmReprompt)
		return model.StateWaitingConfirm, nil
	}
}

func (s *states) priceConfirmation(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	if !isConfirmKeyword(msg.Text) {
		s.send(ctx, sess.ChatID, msgPriceReprompt)
		return model.StatePriceConfirmation, nil
	}

	number := s.policyNumber()
	issuedAt := s.now()
	text := s.policyWriter.Write(ctx, sess, policy.Terms{
		PolicyNumber: number,
		Price:        s.price,
		Currency:     s.currency,
	})
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sess.PriceConfirmed = true
	sess.PolicyNumber = &number
	sess.PolicyIssuedAt = &issuedAt
	if sess.ExtraData == nil {
		sess.ExtraData = datatypes.JSONMap{}
	}
	sess.ExtraData["premium"] = s.price
	sess.ExtraData["currency"] = s.currency
	klog.Infof("保单签发: chatID=%d, policy=%s", sess.ChatID, number)

	s.send(ctx, sess.ChatID, issuedMessage(number, s.price, s.currency))
	if err := s.transport.SendDocument(ctx, sess.ChatID, bytes.NewBufferString(text), "policy_"+number+".txt", number); err != nil {
		// 文件发不出去时退回分段文本
		klog.Warningf("发送保单文件失败，改为分段发送: chatID=%d, policy=%s, error=%v", sess.ChatID, number, err)
		for _, part := range splitText(text, maxMessageRunes) {
			s.send(ctx, sess.ChatID, part)
		}
	}
	return model.StateCompleted, nil
}

func (s *states) completed(ctx context.Context, sess *model.Session, msg InboundMessage) (model.ConversationState, error) {
	number := ""
	if sess.PolicyNumber != nil {
		number = *sess.PolicyNumber
	}
	s.send(ctx, sess.ChatID, completedMessage(number))
	return model.StateCompleted, nil
}
