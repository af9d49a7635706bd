package scanium

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// MockClient is a canned-response implementation of Client. It replaces the
// real service in tests and in offline demo mode, selected explicitly per
// call site rather than through a global switch.
type MockClient struct {
	mu sync.Mutex

	// UploadResponse is returned from UploadCard. If nil, a default demo
	// payload is used.
	UploadResponse *UploadResult
	// UploadErr, when set, makes UploadCard fail.
	UploadErr error

	// Transactions holds the sequence of bodies returned by successive
	// GetTransaction calls; the last entry repeats once exhausted.
	Transactions [][]byte
	// TransactionErr, when set, makes every GetTransaction call fail.
	TransactionErr error

	// SelfieErr and MeetingErr, when set, fail the respective calls.
	SelfieErr  error
	MeetingErr error

	uploadCalls      int
	transactionCalls int
	selfieCalls      int
	meetingCalls     int
}

var demoUpload = []byte(`{
	"transaction_id": "demo-0001",
	"structured_data": {
		"name": "Jordan Diaz",
		"title": "VP of Sales",
		"email": "jordan@acme.example",
		"phone": "+1 555 0100",
		"company": "Acme Corp"
	}
}`)

var demoEnrichment = []byte(`{
	"transaction_id": "demo-0001",
	"company_data": {
		"description": "Industrial supplies distributor",
		"industry": "Wholesale Trade",
		"employee_count": "200-500",
		"revenue": "$50M"
	}
}`)

// NewMockClient returns a MockClient preloaded with a demo card extraction
// and one enrichment response.
func NewMockClient() *MockClient {
	return &MockClient{
		UploadResponse: &UploadResult{TransactionID: "demo-0001", Raw: demoUpload},
		Transactions:   [][]byte{demoEnrichment},
	}
}

func (m *MockClient) UploadCard(_ context.Context, image []byte, _ string) (*UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCalls++

	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	if len(image) == 0 {
		return nil, eris.New("scanium mock: empty image")
	}
	if m.UploadResponse != nil {
		return m.UploadResponse, nil
	}
	return &UploadResult{TransactionID: "demo-0001", Raw: demoUpload}, nil
}

func (m *MockClient) GetTransaction(_ context.Context, transactionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.transactionCalls
	m.transactionCalls++

	if m.TransactionErr != nil {
		return nil, m.TransactionErr
	}
	if len(m.Transactions) == 0 {
		return []byte(`{"transaction_id":"` + transactionID + `"}`), nil
	}
	if call >= len(m.Transactions) {
		call = len(m.Transactions) - 1
	}
	return m.Transactions[call], nil
}

func (m *MockClient) UploadSelfie(context.Context, string, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfieCalls++
	return m.SelfieErr
}

func (m *MockClient) ScheduleMeeting(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetingCalls++
	return m.MeetingErr
}

// Calls reports how many times each operation was invoked.
func (m *MockClient) Calls() (upload, transaction, selfie, meeting int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadCalls, m.transactionCalls, m.selfieCalls, m.meetingCalls
}
