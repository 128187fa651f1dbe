package notify

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/constants"
	"github.com/chrissnell/altiguard/internal/types"
	"github.com/chrissnell/altiguard/pkg/aprs"
	"github.com/chrissnell/altiguard/pkg/config"
)

const aprsConnectionTimeout = 3 * time.Second

// APRS sends each alert as an APRS message to a recipient station through an
// APRS-IS server. Each alert uses a fresh connection.
type APRS struct {
	cfg    config.APRSData
	logger *zap.SugaredLogger
	msgID  atomic.Uint32
}

// NewAPRS creates an APRS notifier.
func NewAPRS(cfg config.APRSData, logger *zap.SugaredLogger) *APRS {
	return &APRS{cfg: cfg, logger: logger}
}

func (a *APRS) SendAlertNotification(ctx context.Context, alertType types.AlertType, title, message string) bool {
	text := title + ": " + message
	id := fmt.Sprint(a.msgID.Add(1) % 100000)
	if err := a.send(ctx, aprs.Message(a.cfg.Callsign, a.cfg.Recipient, text, id)); err != nil {
		a.logger.Warnw("APRS-IS alert failed", "server", a.cfg.APRSISServer, "alert_type", alertType, "error", err)
		return false
	}
	return true
}

func (a *APRS) send(ctx context.Context, pkt string) error {
	dialer := net.Dialer{
		Timeout: aprsConnectionTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", a.cfg.APRSISServer)
	if err != nil {
		return fmt.Errorf("error dialing APRS-IS server %v: %w", a.cfg.APRSISServer, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(aprsConnectionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	buffCon := bufio.NewReader(conn)

	resp, err := buffCon.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading APRS-IS greeting: %w", err)
	}
	if !strings.HasPrefix(resp, "#") {
		return fmt.Errorf("APRS-IS server did not respond with proper greeting: %q", resp)
	}

	login := aprs.Login(a.cfg.Callsign, a.cfg.Passcode, constants.ProductName, constants.Version)
	if _, err := conn.Write([]byte(login)); err != nil {
		return fmt.Errorf("error writing APRS-IS login: %w", err)
	}

	resp, err = buffCon.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading APRS-IS login reply: %w", err)
	}
	if !strings.HasPrefix(resp, "#") {
		return fmt.Errorf("APRS-IS server did not respond with proper login reply: %q", resp)
	}
	// "unverified" also contains "verified"
	if !strings.Contains(resp, " verified") {
		return fmt.Errorf("unable to log into APRS-IS, server response: %q", strings.TrimSpace(resp))
	}

	if _, err := conn.Write([]byte(pkt)); err != nil {
		return fmt.Errorf("error writing APRS packet: %w", err)
	}
	return nil
}
