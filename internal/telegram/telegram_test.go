package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdocs-backend/internal/documents"
)

type fakeBot struct {
	mu          sync.Mutex
	file        []byte
	getFileErr  error
	downloadErr error
	replies     []string
}

func (b *fakeBot) GetFile(_ context.Context, fileID string) (File, error) {
	if b.getFileErr != nil {
		return File{}, b.getFileErr
	}
	return File{FileID: fileID, FilePath: "photos/" + fileID + ".jpg"}, nil
}

func (b *fakeBot) Download(context.Context, string, int64) ([]byte, error) {
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}
	return b.file, nil
}

func (b *fakeBot) SendMessage(_ context.Context, _ int64, text string, _ int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, text)
	return nil
}

type fakeSubmitter struct {
	inputs []documents.SubmitInput
	doc    documents.Document
	err    error
}

func (s *fakeSubmitter) Submit(_ context.Context, in documents.SubmitInput) (documents.Document, error) {
	s.inputs = append(s.inputs, in)
	return s.doc, s.err
}

func photoUpdate(id int64, caption string) Update {
	return Update{
		UpdateID: id,
		Message: &Message{
			MessageID: 7,
			Chat:      Chat{ID: 42},
			Caption:   caption,
			Photo: []PhotoSize{
				{FileID: "small", Width: 90, Height: 90},
				{FileID: "large", Width: 1280, Height: 960},
				{FileID: "medium", Width: 320, Height: 240},
			},
		},
	}
}

func TestParseCaption(t *testing.T) {
	cases := []struct {
		in   string
		want Caption
	}{
		{"#fuel @1234-abc", Caption{Type: documents.TypeFuelTicket, VehicleRef: "1234ABC"}},
		{"repostaje hoy #combustible", Caption{Type: documents.TypeFuelTicket}},
		{"#unknown #itv", Caption{Type: documents.TypeITV}},
		{"@ 9999XYZ", Caption{}},
		{"", Caption{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseCaption(tc.in), tc.in)
	}
}

func TestMemoryDeduperExpires(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	first, err := d.MarkSeen(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, first)
	again, err := d.MarkSeen(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, again)

	now = now.Add(2 * time.Minute)
	afterTTL, err := d.MarkSeen(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, afterTTL)
}

func TestHandleUpdateSubmitsLargestPhotoWithCaption(t *testing.T) {
	bot := &fakeBot{file: []byte("jpeg-bytes")}
	sub := &fakeSubmitter{doc: documents.Document{
		ID:              "doc-1",
		Type:            documents.TypeFuelTicket,
		Status:          documents.StatusDone,
		ExtractedFields: map[string]any{"liters": 45.3, "currency": "EUR"},
	}}
	in := &Intake{Docs: sub, Bot: bot, Dedup: NewMemoryDeduper(0), Mode: documents.ModeInline}

	require.NoError(t, in.HandleUpdate(context.Background(), photoUpdate(100, "#fuel @1234ABC")))

	require.Len(t, sub.inputs, 1)
	got := sub.inputs[0]
	assert.Equal(t, []byte("jpeg-bytes"), got.Image)
	assert.Equal(t, "fuel_ticket", got.TypeHint)
	assert.Equal(t, "1234ABC", got.VehicleRef)
	assert.Equal(t, documents.SourceTelegram, got.Source)
	require.Len(t, bot.replies, 1)
	assert.Contains(t, bot.replies[0], "doc-1")
	assert.Contains(t, bot.replies[0], "liters: 45.3")
}

func TestHandleUpdateDropsDuplicates(t *testing.T) {
	bot := &fakeBot{file: []byte("jpeg-bytes")}
	sub := &fakeSubmitter{doc: documents.Document{ID: "doc-1", Status: documents.StatusPending}}
	in := &Intake{Docs: sub, Bot: bot, Dedup: NewMemoryDeduper(0)}

	require.NoError(t, in.HandleUpdate(context.Background(), photoUpdate(5, "")))
	require.NoError(t, in.HandleUpdate(context.Background(), photoUpdate(5, "")))

	assert.Len(t, sub.inputs, 1)
	assert.Len(t, bot.replies, 1)
}

func TestHandleUpdateRepliesWithFailureNotice(t *testing.T) {
	bot := &fakeBot{file: []byte("jpeg-bytes")}
	sub := &fakeSubmitter{doc: documents.Document{
		ID:        "doc-9",
		Status:    documents.StatusError,
		ErrorCode: documents.ErrorCodeExtractionTransient,
	}}
	in := &Intake{Docs: sub, Bot: bot}

	require.NoError(t, in.HandleUpdate(context.Background(), photoUpdate(1, "")))
	require.Len(t, bot.replies, 1)
	assert.Contains(t, bot.replies[0], "doc-9")
	assert.Contains(t, bot.replies[0], "reprocess")
}

func TestHandleUpdateRepliesWhenFileCannotBeFetched(t *testing.T) {
	tests := []struct {
		name string
		bot  *fakeBot
	}{
		{name: "get file", bot: &fakeBot{getFileErr: errors.New("telegram getFile: Bad Request")}},
		{name: "download", bot: &fakeBot{downloadErr: errors.New("telegram download status 502")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			in := &Intake{Docs: sub, Bot: tt.bot, Dedup: NewMemoryDeduper(0)}

			err := in.HandleUpdate(context.Background(), photoUpdate(11, "#fuel"))
			require.Error(t, err)
			assert.Empty(t, sub.inputs)
			require.Len(t, tt.bot.replies, 1)
			assert.Contains(t, tt.bot.replies[0], "could not be downloaded")

			// The redelivered update is a duplicate and gets no second notice.
			require.NoError(t, in.HandleUpdate(context.Background(), photoUpdate(11, "#fuel")))
			assert.Len(t, tt.bot.replies, 1)
		})
	}
}

func TestHandleUpdateWithoutImageAsksForPhoto(t *testing.T) {
	bot := &fakeBot{}
	sub := &fakeSubmitter{}
	in := &Intake{Docs: sub, Bot: bot}

	upd := Update{UpdateID: 3, Message: &Message{MessageID: 1, Chat: Chat{ID: 42}, Text: "hello"}}
	require.NoError(t, in.HandleUpdate(context.Background(), upd))
	assert.Empty(t, sub.inputs)
	require.Len(t, bot.replies, 1)
	assert.Contains(t, bot.replies[0], "Send a photo")
}

func TestHandleUpdateUnsupportedMedia(t *testing.T) {
	bot := &fakeBot{file: []byte("%PDF-1.4")}
	sub := &fakeSubmitter{err: documents.ErrUnsupportedMedia}
	in := &Intake{Docs: sub, Bot: bot}

	upd := Update{UpdateID: 4, Message: &Message{
		MessageID: 1,
		Chat:      Chat{ID: 42},
		Document:  &Attachment{FileID: "pdf", FileName: "policy.pdf", MimeType: "application/pdf"},
	}}
	require.NoError(t, in.HandleUpdate(context.Background(), upd))
	require.Len(t, bot.replies, 1)
	assert.Contains(t, bot.replies[0], "PDF")
}

func TestWebhookChecksSecretAndAcknowledges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bot := &fakeBot{file: []byte("jpeg-bytes")}
	sub := &fakeSubmitter{doc: documents.Document{ID: "doc-1", Status: documents.StatusPending}}
	h := NewWebhookHandler(&Intake{Docs: sub, Bot: bot, Dedup: NewMemoryDeduper(0)}, "s3cret")
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))

	body, err := json.Marshal(photoUpdate(11, "#itv"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, sub.inputs)

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook", bytes.NewReader(body))
		req.Header.Set(secretHeader, "s3cret")
		resp = httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}
	assert.Len(t, sub.inputs, 1)
}

func TestClientCallsBotAPI(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		sent  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"f1","file_path":"photos/f1.jpg"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = json.NewDecoder(r.Body).Decode(&sent)
			_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
		case strings.HasPrefix(r.URL.Path, "/file/"):
			_, _ = io.WriteString(w, "image-bytes")
		default:
			_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	defer srv.Close()

	c, err := NewClient("123:abc")
	require.NoError(t, err)
	c.baseURL = srv.URL

	f, err := c.GetFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "photos/f1.jpg", f.FilePath)

	data, err := c.Download(context.Background(), f.FilePath, 1024)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	require.NoError(t, c.SendMessage(context.Background(), 42, "hi", 7))
	assert.EqualValues(t, 42, sent["chat_id"])
	assert.EqualValues(t, 7, sent["reply_to_message_id"])

	_, err = c.GetUpdates(context.Background(), 0, time.Second)
	require.True(t, errors.Is(err, ErrAPI))

	assert.Contains(t, paths, "/bot123:abc/getFile")
	assert.Contains(t, paths, "/file/bot123:abc/photos/f1.jpg")
}

type scriptedSource struct {
	batches [][]Update
	calls   int
	cancel  context.CancelFunc
}

func (s *scriptedSource) GetUpdates(_ context.Context, offset int64, _ time.Duration) ([]Update, error) {
	s.calls++
	if s.calls > len(s.batches) {
		s.cancel()
		return nil, context.Canceled
	}
	batch := s.batches[s.calls-1]
	for _, u := range batch {
		if u.UpdateID < offset {
			return nil, errors.New("offset not advanced")
		}
	}
	return batch, nil
}

func TestPollerAdvancesOffset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bot := &fakeBot{file: []byte("jpeg-bytes")}
	sub := &fakeSubmitter{doc: documents.Document{ID: "doc-1", Status: documents.StatusPending}}
	src := &scriptedSource{
		batches: [][]Update{{photoUpdate(10, ""), photoUpdate(11, "")}, {photoUpdate(12, "")}},
		cancel:  cancel,
	}
	p := &Poller{Source: src, Intake: &Intake{Docs: sub, Bot: bot, Dedup: NewMemoryDeduper(0)}, Backoff: time.Millisecond}

	require.NoError(t, p.Run(ctx))
	assert.Len(t, sub.inputs, 3)
	assert.Equal(t, 3, src.calls)
}
