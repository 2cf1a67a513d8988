package notify

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/printflow/printflow/internal/config"
	"github.com/printflow/printflow/internal/core"
)

type smsTask struct {
	to      string
	body    string
	attempt int
}

// Sender delivers pickup SMS messages through a Twilio-style REST API. It is
// strictly best-effort: messages queue through a bounded channel, workers
// retry transient failures with backoff, and when the queue is full the
// message is dropped and logged. The engine never waits on delivery.
type Sender struct {
	baseURL    string
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	workers    int
	queue      chan *smsTask
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewSender(cfg config.NotifyConfig) *Sender {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryCount: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		workers:    cfg.WorkerCount,
		queue:      make(chan *smsTask, cfg.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// NotifyPickup enqueues the pickup message and returns immediately.
func (s *Sender) NotifyPickup(n core.PickupNotification) {
	body := fmt.Sprintf("PrintFlow:\nPrint ready.\nToken: #%d\nCollect from vendor counter.", n.TokenNumber)
	if n.VendorName != "" {
		body = fmt.Sprintf("PrintFlow:\nPrint ready.\nToken: #%d\nCollect from %s.", n.TokenNumber, n.VendorName)
	}

	task := &smsTask{
		to:   FormatPhoneNumber(n.Phone),
		body: body,
	}

	select {
	case s.queue <- task:
	default:
		log.Printf("[notify] queue full, dropping pickup SMS for token %d", n.TokenNumber)
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				log.Printf("[notify worker %d] failed to send SMS to %s after %d attempts: %v",
					id, task.to, task.attempt, err)
			}
		}
	}
}

func (s *Sender) sendWithRetry(task *smsTask) error {
	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(task)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			log.Printf("[notify] client error, not retrying: %v", err)
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(task *smsTask) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	form := url.Values{}
	form.Set("To", task.to)
	form.Set("From", s.fromNumber)
	form.Set("Body", task.body)

	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}

	return nil
}

// FormatPhoneNumber normalizes a local number to E.164, defaulting to the
// Indian country code when none is present.
func FormatPhoneNumber(phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}

	var cleaned strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			cleaned.WriteRune(r)
		}
	}
	digits := cleaned.String()

	digits = strings.TrimPrefix(digits, "0")
	if len(digits) == 10 {
		digits = "91" + digits
	}
	return "+" + digits
}

func isClientError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "http error: 4")
}
