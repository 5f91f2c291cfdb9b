package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"kubecompat/lib/history"
)

func testReport() Report {
	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	return Report{
		Batch: "a1b2c3d4",
		Runs: []history.Run{
			{App: "flux", StartedAt: start, FinishedAt: start.Add(2 * time.Second), Candidates: 12, Versions: 5},
			{App: "kserve", StartedAt: start, FinishedAt: start.Add(time.Second), Error: "scrape kserve: page not found"},
		},
	}
}

func TestReport(t *testing.T) {
	report := testReport()
	require.Equal(t, 1, report.Failed())
	require.Equal(t, "kubecompat a1b2c3d4: 1 updated, 1 failed", report.Subject())

	body := report.Body()
	require.Contains(t, body, "a1b2c3d4")
	require.Contains(t, body, "flux")
	require.Contains(t, body, "2s")
	require.Contains(t, body, "scrape kserve: page not found")
}

func TestShouldSend(t *testing.T) {
	enabled := Config{
		Smtp: SmtpConfig{Server: "localhost", Port: 1025},
		To:   []string{"ops@example.com"},
	}
	onlyFailures := enabled
	onlyFailures.OnlyFailures = true

	failing := testReport()
	passing := testReport()
	passing.Runs = passing.Runs[:1]

	testCases := []struct {
		name     string
		config   Config
		report   Report
		expected bool
	}{
		{name: "disabled", config: Config{}, report: failing, expected: false},
		{name: "no runs", config: enabled, report: Report{Batch: "x"}, expected: false},
		{name: "always", config: enabled, report: passing, expected: true},
		{name: "only failures with failure", config: onlyFailures, report: failing, expected: true},
		{name: "only failures without failure", config: onlyFailures, report: passing, expected: false},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, NewMailer(tc.config).ShouldSend(tc.report), tc.name)
	}
}

func TestSendThroughSmtp(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a container runtime")
	}

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	server, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "haravich/fake-smtp-server",
			ExposedPorts: []string{"1025/tcp", "1080/tcp"},
			WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
		},
	})
	if err != nil {
		t.Skipf("smtp container unavailable: %v", err)
	}
	t.Cleanup(func() {
		require.NoError(t, server.Terminate(context.Background()))
	})

	host, err := server.Host(ctx)
	require.NoError(t, err)
	smtpPort, err := server.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)
	webPort, err := server.MappedPort(ctx, "1080/tcp")
	require.NoError(t, err)

	var port int
	_, err = fmt.Sscanf(smtpPort.Port(), "%d", &port)
	require.NoError(t, err)

	mailer := NewMailer(Config{
		Smtp: SmtpConfig{
			Server:       host,
			Port:         port,
			EmailAddress: "kubecompat@example.com",
			Password:     "default",
		},
		To: []string{"ops@example.com"},
	})
	require.NoError(t, mailer.Send(ctx, testReport()))

	res, err := resty.New().R().
		Get(fmt.Sprintf("http://%s:%s/messages/1.plain", host, webPort.Port()))
	require.NoError(t, err)
	require.True(t, strings.Contains(res.String(), "a1b2c3d4"), res.String())
}
