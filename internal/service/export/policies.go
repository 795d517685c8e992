// Package export 导出已签发保单
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weibaohui/insurebot/internal/model"
	"github.com/xuri/excelize/v2"
	"k8s.io/klog/v2"
)

const policySheet = "Policies"

type PolicyLister interface {
	ListCompleted(ctx context.Context, limit int) ([]model.Session, error)
}

// PolicyRow 一张已签发保单的扁平视图
type PolicyRow struct {
	PolicyNumber       string    `json:"policy_number"`
	ChatID             int64     `json:"chat_id"`
	IssuedAt           time.Time `json:"issued_at"`
	HolderName         string    `json:"holder_name"`
	PassportNumber     string    `json:"passport_number"`
	Vehicle            string    `json:"vehicle"`
	RegistrationNumber string    `json:"registration_number"`
	Premium            string    `json:"premium"`
}

type Service struct {
	sessions PolicyLister
}

func NewService(sessions PolicyLister) *Service {
	return &Service{sessions: sessions}
}

func (s *Service) ListPolicies(ctx context.Context, limit int) ([]PolicyRow, error) {
	sessions, err := s.sessions.ListCompleted(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	rows := make([]PolicyRow, 0, len(sessions))
	for i := range sessions {
		if row, ok := NewPolicyRow(&sessions[i]); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// NewPolicyRow 未签发的会话返回 false
func NewPolicyRow(sess *model.Session) (PolicyRow, bool) {
	if sess.PolicyNumber == nil {
		return PolicyRow{}, false
	}
	row := PolicyRow{
		PolicyNumber: *sess.PolicyNumber,
		ChatID:       sess.ChatID,
	}
	if sess.PolicyIssuedAt != nil {
		row.IssuedAt = *sess.PolicyIssuedAt
	}

	identity := fields(sess.ExtractedIdentity)
	row.HolderName = join(identity["FirstName"], identity["LastName"])
	row.PassportNumber = identity["PassportNumber"]

	front := fields(sess.ExtractedVehicleFront)
	row.Vehicle = join(front["Manufacturer"], front["Model"])

	back := fields(sess.ExtractedVehicleBack)
	row.RegistrationNumber = back["RegistrationNumber"]

	if premium, ok := sess.ExtraData["premium"]; ok {
		row.Premium = strings.TrimSpace(fmt.Sprintf("%v %v", premium, sess.ExtraData["currency"]))
	}
	return row, true
}

// ExportPoliciesXLSX 返回 XLSX 工作簿字节
func (s *Service) ExportPoliciesXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()
	rows, err := s.ListPolicies(ctx, limit)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", policySheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Policy Number",
		"Chat ID",
		"Issued At",
		"Holder",
		"Passport Number",
		"Vehicle",
		"Registration Number",
		"Premium",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(policySheet, cell, h)
	}

	for i, r := range rows {
		line := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, line)
			_ = f.SetCellValue(policySheet, cell, v)
		}
		write(1, r.PolicyNumber)
		write(2, r.ChatID)
		if r.IssuedAt.IsZero() {
			write(3, "")
		} else {
			write(3, r.IssuedAt.UTC().Format(time.RFC3339))
		}
		write(4, r.HolderName)
		write(5, r.PassportNumber)
		write(6, r.Vehicle)
		write(7, r.RegistrationNumber)
		write(8, r.Premium)
	}

	_ = f.SetColWidth(policySheet, "A", "A", 16)
	_ = f.SetColWidth(policySheet, "B", "B", 14)
	_ = f.SetColWidth(policySheet, "C", "C", 22)
	_ = f.SetColWidth(policySheet, "D", "G", 24)
	_ = f.SetColWidth(policySheet, "H", "H", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	klog.V(6).Infof("导出保单完成: rows=%d, cost=%v", len(rows), time.Since(start))
	return buf.Bytes(), nil
}

func fields(data *model.ExtractedData) map[string]string {
	if data == nil {
		return map[string]string{}
	}
	return data.Fields
}

func join(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
