package scanium

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_DemoDefaults(t *testing.T) {
	m := NewMockClient()

	res, err := m.UploadCard(context.Background(), []byte("img"), "card.jpg")
	require.NoError(t, err)
	assert.Equal(t, "demo-0001", res.TransactionID)
	assert.Contains(t, string(res.Raw), "Jordan Diaz")

	body, err := m.GetTransaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Wholesale Trade")

	require.NoError(t, m.UploadSelfie(context.Background(), res.TransactionID, []byte("img")))
	require.NoError(t, m.ScheduleMeeting(context.Background(), res.TransactionID))

	up, tx, selfie, meeting := m.Calls()
	assert.Equal(t, []int{1, 1, 1, 1}, []int{up, tx, selfie, meeting})
}

func TestMockClient_TransactionSequenceRepeatsLast(t *testing.T) {
	m := &MockClient{
		Transactions: [][]byte{
			[]byte(`{"n":1}`),
			[]byte(`{"n":2}`),
		},
	}

	for _, want := range []string{`{"n":1}`, `{"n":2}`, `{"n":2}`, `{"n":2}`} {
		body, err := m.GetTransaction(context.Background(), "t")
		require.NoError(t, err)
		assert.Equal(t, want, string(body))
	}
}

func TestMockClient_EmptyImageRejected(t *testing.T) {
	m := NewMockClient()
	_, err := m.UploadCard(context.Background(), nil, "card.jpg")
	require.Error(t, err)
}
