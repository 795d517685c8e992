package bot

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/service/policy"
)

type sentDocument struct {
	ChatID   int64
	Filename string
	Caption  string
	Content  string
}

type fakeTransport struct {
	mu           sync.Mutex
	texts        []string
	documents    []sentDocument
	files        map[string][]byte
	DownloadFunc func(ctx context.Context, fileID string) ([]byte, error)
	DocumentErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{files: map[string][]byte{}}
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if f.DownloadFunc != nil {
		return f.DownloadFunc(ctx, fileID)
	}
	if data, ok := f.files[fileID]; ok {
		return data, nil
	}
	return []byte("image:" + fileID), nil
}

func (f *fakeTransport) SendDocument(ctx context.Context, chatID int64, r io.Reader, filename, caption string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.DocumentErr != nil {
		return f.DocumentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, sentDocument{ChatID: chatID, Filename: filename, Caption: caption, Content: string(content)})
	return nil
}

func (f *fakeTransport) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeTransport) all() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.texts, "\n---\n")
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = nil
}

type fakeDocuments struct {
	IdentityFunc func(ctx context.Context, image []byte) *model.ExtractedData
	FrontFunc    func(ctx context.Context, image []byte) *model.ExtractedData
	BackFunc     func(ctx context.Context, image []byte) *model.ExtractedData
	backImages   []string
}

func ok(kind model.DocumentKind, fields map[string]string) *model.ExtractedData {
	return &model.ExtractedData{DocumentKind: kind, Fields: fields, Confidence: 1, RawPayload: `{"ok":true}`}
}

func zero(kind model.DocumentKind) *model.ExtractedData {
	return &model.ExtractedData{DocumentKind: kind, Fields: map[string]string{}, RawPayload: "service unavailable"}
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		IdentityFunc: func(ctx context.Context, image []byte) *model.ExtractedData {
			return ok(model.DocumentIdentity, map[string]string{"FirstName": "JOHN", "LastName": "DOE", "PassportNumber": "AB123456", "BirthDate": "1990-01-02"})
		},
		FrontFunc: func(ctx context.Context, image []byte) *model.ExtractedData {
			return ok(model.DocumentVehicleFront, map[string]string{"Manufacturer": "Toyota", "Model": "Corolla"})
		},
		BackFunc: func(ctx context.Context, image []byte) *model.ExtractedData {
			return ok(model.DocumentVehicleBack, map[string]string{"RegistrationNumber": "AA1234BB", "OwnerName": "JOHN"})
		},
	}
}

func (f *fakeDocuments) ExtractIdentity(ctx context.Context, image []byte) *model.ExtractedData {
	return f.IdentityFunc(ctx, image)
}

func (f *fakeDocuments) ExtractVehicleFront(ctx context.Context, image []byte) *model.ExtractedData {
	return f.FrontFunc(ctx, image)
}

func (f *fakeDocuments) ExtractVehicleBack(ctx context.Context, image []byte) *model.ExtractedData {
	f.backImages = append(f.backImages, string(image))
	return f.BackFunc(ctx, image)
}

type fakeGenerator struct {
	prompts []string
	answer  string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, systemContext string) string {
	f.prompts = append(f.prompts, prompt)
	return f.answer
}

type fakePolicyWriter struct {
	terms []policy.Terms
	text  string
}

func (f *fakePolicyWriter) Write(ctx context.Context, sess *model.Session, terms policy.Terms) string {
	f.terms = append(f.terms, terms)
	if f.text != "" {
		return f.text
	}
	return "POLICY TEXT " + terms.PolicyNumber
}

type memorySessions struct {
	mu       sync.Mutex
	sessions map[int64]model.Session
	saves    int
	SaveErr  error
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[int64]model.Session{}}
}

func (m *memorySessions) Get(ctx context.Context, chatID int64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		copied := sess
		return &copied, nil
	}
	sess := model.NewSession(chatID)
	m.sessions[chatID] = *sess
	return sess, nil
}

func (m *memorySessions) Save(ctx context.Context, sess *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.saves++
	m.sessions[sess.ChatID] = *sess
	return nil
}

func (m *memorySessions) current(chatID int64) model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[chatID]
}

var errDownload = errors.New("telegram unavailable")

type harness struct {
	transport *fakeTransport
	documents *fakeDocuments
	generator *fakeGenerator
	writer    *fakePolicyWriter
	sessions  *memorySessions
	machine   *Machine
	service   *Service
}

func newHarness() *harness {
	h := &harness{
		transport: newFakeTransport(),
		documents: newFakeDocuments(),
		generator: &fakeGenerator{answer: "AI answer"},
		writer:    &fakePolicyWriter{},
		sessions:  newMemorySessions(),
	}
	h.machine = NewMachine(Deps{
		Transport:    h.transport,
		Documents:    h.documents,
		Generator:    h.generator,
		PolicyWriter: h.writer,
		Price:        100,
		Currency:     "USD",
		Now:          func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) },
		PolicyNumber: func() string { return "POL-1A2B3C4D" },
	})
	h.service = NewService(h.machine, h.sessions, nil)
	return h
}

const chatID int64 = 42

func textMsg(s string) InboundMessage {
	return InboundMessage{ChatID: chatID, Text: s}
}

func imageMsg(ref string) InboundMessage {
	return InboundMessage{ChatID: chatID, ImageRef: ref, HasAttachment: true}
}
