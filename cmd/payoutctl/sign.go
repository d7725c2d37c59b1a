package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/punchamoorthee/payoutops/internal/delivery"
	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/signature"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <payout-id> <status>",
		Short: "Build a signed payout notification, optionally posting it to a receiver",
		Example: `  payoutctl sign 42 PAID --secret s3cret
  payoutctl sign 42 PAID --secret s3cret --age 10m --send http://localhost:8080/webhooks/payments`,
		Args: cobra.ExactArgs(2),
		RunE: runSign,
	}
	cmd.Flags().String("secret", "", "Shared callback secret (defaults to SHARED_CALLBACK_SECRET)")
	cmd.Flags().String("request-id", "", "Correlation id (random when empty)")
	cmd.Flags().Duration("age", 0, "Backdate the timestamp by this much")
	cmd.Flags().String("send", "", "POST the notification to this URL")
	return cmd
}

func runSign(cmd *cobra.Command, args []string) error {
	var payoutID int64
	if _, err := fmt.Sscanf(args[0], "%d", &payoutID); err != nil || payoutID <= 0 {
		return fmt.Errorf("payout id must be a positive integer")
	}
	status := strings.ToUpper(args[1])

	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("SHARED_CALLBACK_SECRET")
	}
	requestID, _ := cmd.Flags().GetString("request-id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	age, _ := cmd.Flags().GetDuration("age")

	n := domain.Notification{
		PayoutID:  payoutID,
		NewStatus: status,
		RequestID: requestID,
		Timestamp: time.Now().Add(-age).Unix(),
	}
	sig, err := signature.Sign(n.Fields(), secret)
	if err != nil {
		return err
	}
	body, err := signature.Canonicalize(n.Fields())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n%s\n", signature.Header, sig, body)

	target, _ := cmd.Flags().GetString("send")
	if target == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, sig)
	req.Header.Set(delivery.CorrelationHeader, requestID)

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	fmt.Fprintf(out, "-> %d %s\n", resp.StatusCode, bytes.TrimSpace(reply))
	return nil
}
