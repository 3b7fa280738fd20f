package queueconsumer

import "encoding/json"

// mockFixture is the built-in four-message batch USE_MOCK_MODE serves in
// place of a real broker, matching the original fixture's speakers and
// voice-mapping keys so local runs exercise the same shape of job.
var mockFixture = []byte(`{
	"video_id": "mock-request-1",
	"messages": [
		{"text": "Oi, sou o aluno Lucas!", "from_user": "aluno"},
		{"text": "Oi Lucas, sou a professora Marina!", "from_user": "professora"},
		{"text": "Como esta indo com os estudos?", "from_user": "aluno"},
		{"text": "Muito bem! Continue assim!", "from_user": "professora"}
	],
	"voice_mapping": {
		"aluno": "voz_aluno_lucas",
		"professora": "voz_professora_marina"
	},
	"use_voice_cloning": true
}`)

// MockSource is a deterministic Source used when USE_MOCK_MODE bypasses the
// broker entirely; every step is a no-op except PollOne, which always
// returns the same fixture once.
type MockSource struct {
	queueName string
	consumed  bool
}

var _ Source = (*MockSource)(nil)

// NewMockSource creates a MockSource bound to the given queue name (stored
// but not otherwise used; the mock never touches a real broker).
func NewMockSource(queueName string) *MockSource {
	return &MockSource{queueName: queueName}
}

func (m *MockSource) Connect() error { return nil }

// PollOne returns the fixture message the first time it is called, and nil
// thereafter, mirroring the "one message, one queue lifetime" contract.
func (m *MockSource) PollOne() (*Message, error) {
	if m.consumed {
		return nil, nil
	}
	m.consumed = true

	var body json.RawMessage
	if err := json.Unmarshal(mockFixture, &body); err != nil {
		return nil, err
	}
	return &Message{ID: "mock-request-1", Body: []byte(body)}, nil
}

func (m *MockSource) DeleteQueue() error { return nil }

func (m *MockSource) Close() error { return nil }
