package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	unreadLabel = "UNREAD"
	// Gmail caps a single list page at 500 ids.
	maxPageSize = 500
)

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	CredentialsFile string
	TokenFile       string
	User            string
	Query           string
	ProcessedLabel  string
	MaxResults      int64
}

// GmailMailbox implements Mailbox on the Gmail API.
type GmailMailbox struct {
	svc   *gmail.Service
	cfg   GmailConfig
	cb    *gobreaker.CircuitBreaker
	log   zerolog.Logger
	query string

	labelMu sync.Mutex
	labelID string
}

var _ Mailbox = (*GmailMailbox)(nil)

// NewGmailMailbox builds an authorized Gmail client from the OAuth client
// credentials file and a previously issued token file.
func NewGmailMailbox(ctx context.Context, cfg GmailConfig, log zerolog.Logger) (*GmailMailbox, error) {
	credentials, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("NewGmailMailbox: reading credentials: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(credentials, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("NewGmailMailbox: parsing credentials: %w", err)
	}

	token, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("NewGmailMailbox: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("NewGmailMailbox: creating service: %w", err)
	}

	return newGmailMailbox(svc, cfg, log), nil
}

func newGmailMailbox(svc *gmail.Service, cfg GmailConfig, log zerolog.Logger) *GmailMailbox {
	if cfg.User == "" {
		cfg.User = "me"
	}
	log = log.With().Str("component", "gmail").Logger()

	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &GmailMailbox{
		svc:   svc,
		cfg:   cfg,
		cb:    gobreaker.NewCircuitBreaker(settings),
		log:   log,
		query: BuildQuery(cfg.Query, cfg.ProcessedLabel),
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file %s: %w", path, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("decoding token file %s: %w", path, err)
	}
	return &token, nil
}

func (m *GmailMailbox) ListNewMessages(ctx context.Context) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		call := m.svc.Users.Messages.List(m.cfg.User).Q(m.query).MaxResults(m.pageSize(len(ids)))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		err := m.execute("ListNewMessages", func() error {
			var apiErr error
			resp, apiErr = call.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, fmt.Errorf("ListNewMessages: %w", err)
		}

		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}

		if resp.NextPageToken == "" || (m.cfg.MaxResults > 0 && int64(len(ids)) >= m.cfg.MaxResults) {
			break
		}
		pageToken = resp.NextPageToken
	}

	if m.cfg.MaxResults > 0 && int64(len(ids)) > m.cfg.MaxResults {
		ids = ids[:m.cfg.MaxResults]
	}

	m.log.Debug().Str("query", m.query).Int("count", len(ids)).Msg("Listed new messages")
	return ids, nil
}

func (m *GmailMailbox) pageSize(have int) int64 {
	if m.cfg.MaxResults <= 0 {
		return maxPageSize
	}
	remaining := m.cfg.MaxResults - int64(have)
	if remaining > maxPageSize {
		return maxPageSize
	}
	return remaining
}

func (m *GmailMailbox) GetMessage(ctx context.Context, messageID string) (*domain.InboundMessage, error) {
	var msg *gmail.Message
	err := m.execute("GetMessage", func() error {
		var apiErr error
		msg, apiErr = m.svc.Users.Messages.Get(m.cfg.User, messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("GetMessage: %s: %w", messageID, apperrors.ErrMessageNotFound)
		}
		return nil, fmt.Errorf("GetMessage: %s: %w", messageID, err)
	}

	converted := ConvertMessage(msg)
	return &converted, nil
}

func (m *GmailMailbox) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var body *gmail.MessagePartBody
	err := m.execute("DownloadAttachment", func() error {
		var apiErr error
		body, apiErr = m.svc.Users.Messages.Attachments.Get(m.cfg.User, messageID, attachmentID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("DownloadAttachment: %s: %w", messageID, apperrors.ErrAttachmentNotFound)
		}
		return nil, fmt.Errorf("DownloadAttachment: %s: %w", messageID, err)
	}

	data, err := DecodeAttachmentData(body.Data)
	if err != nil {
		return nil, fmt.Errorf("DownloadAttachment: %s: %w", messageID, err)
	}
	return data, nil
}

func (m *GmailMailbox) MarkProcessed(ctx context.Context, messageID string) error {
	labelID, err := m.processedLabelID(ctx)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{labelID},
		RemoveLabelIds: []string{unreadLabel},
	}
	err = m.execute("MarkProcessed", func() error {
		_, apiErr := m.svc.Users.Messages.Modify(m.cfg.User, messageID, req).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("MarkProcessed: %s: %w", messageID, err)
	}
	return nil
}

// processedLabelID resolves the processed label, creating it on first use.
func (m *GmailMailbox) processedLabelID(ctx context.Context) (string, error) {
	m.labelMu.Lock()
	defer m.labelMu.Unlock()

	if m.labelID != "" {
		return m.labelID, nil
	}

	var labels *gmail.ListLabelsResponse
	err := m.execute("ListLabels", func() error {
		var apiErr error
		labels, apiErr = m.svc.Users.Labels.List(m.cfg.User).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("listing labels: %w", err)
	}

	for _, l := range labels.Labels {
		if strings.EqualFold(l.Name, m.cfg.ProcessedLabel) {
			m.labelID = l.Id
			return m.labelID, nil
		}
	}

	var created *gmail.Label
	err = m.execute("CreateLabel", func() error {
		var apiErr error
		created, apiErr = m.svc.Users.Labels.Create(m.cfg.User, &gmail.Label{
			Name:                  m.cfg.ProcessedLabel,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("creating label %q: %w", m.cfg.ProcessedLabel, err)
	}

	m.log.Info().Str("label", m.cfg.ProcessedLabel).Str("label_id", created.Id).Msg("Created processed label")
	m.labelID = created.Id
	return m.labelID, nil
}

// execute wraps an API call with circuit breaker protection. Client errors
// are returned without counting against the breaker.
func (m *GmailMailbox) execute(operation string, fn func() error) error {
	_, err := m.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if isClientError(err) {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}

	if err != nil {
		m.log.Warn().
			Err(err).
			Str("operation", operation).
			Str("breaker_state", m.cb.State().String()).
			Msg("Gmail API call failed")
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func isClientError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
