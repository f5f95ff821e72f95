package mailbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		label string
		want  string
	}{
		{"all parts", "filename:pdf", "ledger-procesado", "filename:pdf has:attachment -label:ledger-procesado"},
		{"no base", "", "done", "has:attachment -label:done"},
		{"label with spaces", "in:inbox", "ya procesado", "in:inbox has:attachment -label:ya-procesado"},
		{"no label", "in:inbox", "", "in:inbox has:attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildQuery(tt.base, tt.label); got != tt.want {
				t.Errorf("BuildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:           "18f2a",
		InternalDate: time.Date(2024, time.June, 24, 16, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "subject", Value: "Solicitud - Recurso Tabasco $1,500.00 - entrega"},
				{Name: "From", Value: "Juan Perez <juan@cotemar.com.mx>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "aGk"}},
				{
					MimeType: "multipart/mixed",
					Parts: []*gmail.MessagePart{
						{Filename: "CARTA.pdf", MimeType: "Application/PDF", Body: &gmail.MessagePartBody{AttachmentId: "att-1", Size: 1200}},
						{Filename: "logo.png", MimeType: "image/png", Body: &gmail.MessagePartBody{AttachmentId: "att-2", Size: 40}},
					},
				},
				{Filename: "FACTURA.pdf", MimeType: "application/pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-3", Size: 900}},
				{Filename: "inline.pdf", MimeType: "application/pdf", Body: &gmail.MessagePartBody{}},
			},
		},
	}

	got := ConvertMessage(msg)

	if got.MessageID != "18f2a" {
		t.Errorf("MessageID = %q", got.MessageID)
	}
	if got.Subject != "Solicitud - Recurso Tabasco $1,500.00 - entrega" {
		t.Errorf("Subject = %q", got.Subject)
	}
	if got.Sender != "Juan Perez <juan@cotemar.com.mx>" {
		t.Errorf("Sender = %q", got.Sender)
	}
	if !got.ReceivedAt.Equal(time.Date(2024, time.June, 24, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("ReceivedAt = %v", got.ReceivedAt)
	}

	want := []domain.Attachment{
		{Filename: "CARTA.pdf", MimeType: domain.MimePDF, AttachmentID: "att-1", SizeBytes: 1200},
		{Filename: "logo.png", MimeType: "image/png", AttachmentID: "att-2", SizeBytes: 40},
		{Filename: "FACTURA.pdf", MimeType: domain.MimePDF, AttachmentID: "att-3", SizeBytes: 900},
	}
	if len(got.Attachments) != len(want) {
		t.Fatalf("Attachments = %+v, want %d entries", got.Attachments, len(want))
	}
	for i := range want {
		if got.Attachments[i] != want[i] {
			t.Errorf("Attachments[%d] = %+v, want %+v", i, got.Attachments[i], want[i])
		}
	}
}

func TestConvertMessage_DateHeaderFallback(t *testing.T) {
	msg := &gmail.Message{
		Id: "x",
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Date", Value: "Mon, 24 Jun 2024 10:00:00 -0600"},
			},
		},
	}

	got := ConvertMessage(msg)
	if !got.ReceivedAt.Equal(time.Date(2024, time.June, 24, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("ReceivedAt = %v", got.ReceivedAt)
	}
}

func TestDecodeAttachmentData(t *testing.T) {
	payload := []byte("%PDF-1.4\n\xff\xfe")

	for name, encoded := range map[string]string{
		"padded":   base64.URLEncoding.EncodeToString(payload),
		"unpadded": base64.RawURLEncoding.EncodeToString(payload),
	} {
		got, err := DecodeAttachmentData(encoded)
		if err != nil {
			t.Fatalf("%s: DecodeAttachmentData() error = %v", name, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("%s: DecodeAttachmentData() = %q", name, got)
		}
	}

	if _, err := DecodeAttachmentData("***"); err == nil {
		t.Error("DecodeAttachmentData() accepted invalid input")
	}
}

// newTestMailbox points a Gmail client at handler.
func newTestMailbox(t *testing.T, handler http.Handler, cfg GmailConfig) *GmailMailbox {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("gmail.NewService() error = %v", err)
	}
	return newGmailMailbox(svc, cfg, logger.NewWithWriter(&bytes.Buffer{}))
}

func TestGmailMailbox_ListNewMessagesPaginates(t *testing.T) {
	var queries []string
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"messages":[{"id":"a"},{"id":"b"}],"nextPageToken":"p2"}`))
			return
		}
		w.Write([]byte(`{"messages":[{"id":"c"},{"id":"d"}],"nextPageToken":"p3"}`))
	})

	mb := newTestMailbox(t, mux, GmailConfig{Query: "filename:pdf", ProcessedLabel: "done", MaxResults: 3})

	ids, err := mb.ListNewMessages(context.Background())
	if err != nil {
		t.Fatalf("ListNewMessages() error = %v", err)
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Errorf("ListNewMessages() = %v, want [a b c]", ids)
	}
	if len(queries) != 2 || queries[0] != "filename:pdf has:attachment -label:done" {
		t.Errorf("queries = %v", queries)
	}
}

func TestGmailMailbox_MarkProcessedCreatesLabelOnce(t *testing.T) {
	var creates, modifies int32
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			atomic.AddInt32(&creates, 1)
			w.Write([]byte(`{"id":"Label_7","name":"done"}`))
			return
		}
		w.Write([]byte(`{"labels":[{"id":"INBOX","name":"INBOX"}]}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/modify") {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&modifies, 1)
		var body bytes.Buffer
		body.ReadFrom(r.Body)
		if !strings.Contains(body.String(), "Label_7") || !strings.Contains(body.String(), "UNREAD") {
			t.Errorf("modify body = %s", body.String())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"m"}`))
	})

	mb := newTestMailbox(t, mux, GmailConfig{ProcessedLabel: "done"})

	for _, id := range []string{"m-1", "m-2"} {
		if err := mb.MarkProcessed(context.Background(), id); err != nil {
			t.Fatalf("MarkProcessed(%s) error = %v", id, err)
		}
	}
	if creates != 1 {
		t.Errorf("label creates = %d, want 1", creates)
	}
	if modifies != 2 {
		t.Errorf("modifies = %d, want 2", modifies)
	}
}

func TestGmailMailbox_DownloadAttachmentNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	})

	mb := newTestMailbox(t, mux, GmailConfig{})

	// Client errors must not open the breaker, so every call reaches the API.
	for i := 0; i < 8; i++ {
		_, err := mb.DownloadAttachment(context.Background(), "m-1", "att-1")
		if !errors.Is(err, apperrors.ErrAttachmentNotFound) {
			t.Fatalf("call %d: DownloadAttachment() error = %v, want ErrAttachmentNotFound", i, err)
		}
	}
}
