package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Counters(t *testing.T) {
	r := NewRun()

	r.AccountFetched("ok", 120*time.Millisecond)
	r.AccountFetched("ok", 80*time.Millisecond)
	r.AccountFetched("unavailable", 3*time.Second)
	r.MirrorAttempt("failed")
	r.MirrorAttempt("empty")
	r.MirrorAttempt("ok")
	r.PostSummarized(true)
	r.PostSummarized(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.accountFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.accountFetches.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.mirrorAttempts.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.postsSummarized.WithLabelValues("failed")))

	expected := `
# HELP postbrief_posts_summarized_total Posts sent for summarization, by result (ok, failed)
# TYPE postbrief_posts_summarized_total counter
postbrief_posts_summarized_total{result="failed"} 1
postbrief_posts_summarized_total{result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "postbrief_posts_summarized_total"))
}

func TestRun_WriteTextfile(t *testing.T) {
	r := NewRun()
	r.AccountFetched("empty", time.Second)
	r.Finish(time.Unix(1773489600, 0))

	path := filepath.Join(t.TempDir(), "textfile", "postbrief.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `postbrief_account_fetch_total{outcome="empty"} 1`)
	assert.Contains(t, out, "postbrief_last_run_timestamp_seconds 1.7734896e+09")
	assert.Contains(t, out, "postbrief_account_fetch_duration_seconds_count 1")
}
