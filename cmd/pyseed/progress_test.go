package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pyseed/internal/app"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStageMessage(t *testing.T) {
	assert.Equal(t, "Installing dependencies...", stageMessage("installing dependencies"))
	assert.Equal(t, "Fetching acme/starter...", stageMessage("fetching acme/starter"))
	assert.Equal(t, "Warming up...", stageMessage("warming up"))
	assert.Equal(t, "Working...", stageMessage(""))
}

func TestLineReporterPrintsEachStageOnce(t *testing.T) {
	var buf bytes.Buffer
	r := &lineReporter{w: &buf}
	r.Stage("validating")
	r.Stage("validating")
	r.Stage("installing")
	r.Stop()

	assert.Equal(t, "pyseed: Validating the remote tree...\npyseed: Installing the update...\n", buf.String())
}

func TestStageSpinnerRendersAndClears(t *testing.T) {
	var buf lockedBuffer
	sp := newCustomStageSpinner(&buf, 0, 5*time.Millisecond)
	sp.Stage("installing")

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "Installing the update...")
	}, time.Second, 5*time.Millisecond)

	sp.Stop()
	sp.Stop()
	assert.True(t, strings.HasSuffix(buf.String(), "\033[2K\r"))
}

func TestStageSpinnerStaysHiddenBeforeDelay(t *testing.T) {
	var buf lockedBuffer
	sp := newCustomStageSpinner(&buf, time.Hour, 5*time.Millisecond)
	sp.Stage("installing")
	time.Sleep(30 * time.Millisecond)
	sp.Stop()
	assert.Empty(t, buf.String())
}

func TestStageStopsProgressBeforeHandoff(t *testing.T) {
	var buf bytes.Buffer
	c := &cli{stderr: &buf, plain: true, interactive: func() bool { return false }}

	c.stage("creating environment")
	assert.NotNil(t, c.progress)

	c.stage(app.StageRelaunching)
	assert.Nil(t, c.progress)
	assert.NotContains(t, buf.String(), "relaunching")
}
