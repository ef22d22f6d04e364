package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/fetcher"
	"github.com/sells-group/einvoice-cli/internal/mailer"
	"github.com/sells-group/einvoice-cli/internal/model"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, b *mailer.Batch) error {
	return m.Called(ctx, b).Error(0)
}

type fakeUploader struct {
	remotes []string
	fail    map[string]bool
}

func (f *fakeUploader) Upload(_ context.Context, _, remote string) error {
	if f.fail[remote] {
		return errors.New("550 permission denied")
	}
	f.remotes = append(f.remotes, remote)
	return nil
}

func setOutputs(t *testing.T) string {
	t.Helper()
	old := cfg
	outputs := t.TempDir()
	cfg = &config.Config{Paths: config.PathsConfig{Outputs: outputs}}
	t.Cleanup(func() { cfg = old })
	return outputs
}

func writeResults(t *testing.T, outputs, date, supplier string, rows int) {
	t.Helper()
	values := make([][]string, rows)
	for i := range values {
		values[i] = model.Row{UUID: "U", PONumber: "45678"}.Values()
	}
	path := filepath.Join(outputs, date, "Excel", supplier, "results.xlsx")
	require.NoError(t, fetcher.WriteXLSX(path, "Results", model.ReportColumns, values))
}

func TestSendStage(t *testing.T) {
	outputs := setOutputs(t)
	writeResults(t, outputs, "14-03-2026", "3MP", 2)
	writeResults(t, outputs, "14-03-2026", "MMP", 1)

	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(b *mailer.Batch) bool {
		return b.Date == "14-03-2026" && len(b.Reports) == 2
	})).Return(nil).Once()
	up := &fakeUploader{fail: map[string]bool{"14-03-2026/14-03-2026_MMP_results.xlsx": true}}

	out, err := sendStage(sender, up, "14-03-2026")(context.Background(), nil)
	require.NoError(t, err)
	sender.AssertExpectations(t)

	res := out.(*sendResult)
	assert.Equal(t, "14-03-2026", res.Date)
	assert.Equal(t, 2, res.Attachments)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.UploadErrors)
	assert.Equal(t, []string{"14-03-2026/14-03-2026_3MP_results.xlsx"}, up.remotes)
}

func TestSendStage_NoUploader(t *testing.T) {
	outputs := setOutputs(t)
	writeResults(t, outputs, "14-03-2026", "3MP", 1)

	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	out, err := sendStage(sender, nil, "14-03-2026")(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, out.(*sendResult).Uploaded)
}

func TestSendStage_SendFailureSkipsUpload(t *testing.T) {
	outputs := setOutputs(t)
	writeResults(t, outputs, "14-03-2026", "3MP", 1)

	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("535 authentication failed"))

	up := &fakeUploader{}
	_, err := sendStage(sender, up, "14-03-2026")(context.Background(), nil)
	assert.EqualError(t, err, "535 authentication failed")
	assert.Empty(t, up.remotes)
}

func TestSendStage_NoReports(t *testing.T) {
	setOutputs(t)
	sender := &mockSender{}
	_, err := sendStage(sender, nil, "14-03-2026")(context.Background(), nil)
	require.Error(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
