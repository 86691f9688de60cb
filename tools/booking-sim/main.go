// Command booking-sim walks the public booking flow against a running booking-service:
// list slots, start an SMS session, submit the code and create the appointment.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking-service base url")
		channel = flag.String("channel", getenv("CHANNEL", "sms"), "verification channel: sms, telegram or google")
		master  = flag.String("master-id", getenv("MASTER_ID", ""), "master id")
		service = flag.String("service-id", getenv("SERVICE_ID", ""), "service id")
		date    = flag.String("date", getenv("DATE", time.Now().AddDate(0, 0, 1).Format(time.DateOnly)), "day to book (YYYY-MM-DD)")
		phone   = flag.String("phone", getenv("PHONE", ""), "customer phone")
		email   = flag.String("email", getenv("EMAIL", ""), "customer e-mail (google channel, or profile update)")
		name    = flag.String("name", getenv("CUSTOMER_NAME", "Booking Sim"), "customer name")
		code    = flag.String("code", getenv("CODE", ""), "verification code; prompted when empty")
		waitFor = flag.Duration("wait", 2*time.Minute, "how long to wait for google sign-in")
	)
	flag.Parse()

	if strings.TrimSpace(*master) == "" || strings.TrimSpace(*service) == "" {
		fatal("MASTER_ID and SERVICE_ID are required")
	}

	ctx := context.Background()
	c := newClient(*baseURL)

	slots, err := c.slots(ctx, *master, *service, *date)
	if err != nil {
		fatal("list slots: " + err.Error())
	}
	if len(slots) == 0 {
		fatal("no free slots on " + *date)
	}
	fmt.Printf("free slots=%d picking=%s\n", len(slots), slots[0].StartAt)

	sess, err := c.start(ctx, map[string]string{
		"channel":       *channel,
		"phone":         *phone,
		"email":         *email,
		"customer_name": *name,
		"master_id":     *master,
		"service_id":    *service,
		"start_at":      slots[0].StartAt,
	})
	if err != nil {
		fatal("start session: " + err.Error())
	}
	fmt.Printf("session=%s state=%s expires_in=%ds\n", sess.SessionID, sess.State, sess.ExpiresInSeconds)

	switch {
	case sess.RedirectURL != "":
		fmt.Println("open to sign in:", sess.RedirectURL)
		sess, err = waitVerified(ctx, c, sess.SessionID, *waitFor)
	default:
		if sess.TelegramLink != "" {
			fmt.Println("open in telegram, share your phone, then enter the code:", sess.TelegramLink)
		}
		sess, err = submitCode(ctx, c, sess.SessionID, *code)
	}
	if err != nil {
		fatal("verify: " + err.Error())
	}
	fmt.Printf("session=%s state=%s\n", sess.SessionID, sess.State)

	profile := map[string]string{}
	if *email != "" {
		profile["email"] = *email
	}
	appt, err := c.book(ctx, sess.SessionID, profile)
	if err != nil {
		fatal("create appointment: " + err.Error())
	}
	fmt.Printf("appointment=%s start=%s end=%s status=%s\n", appt.AppointmentID, appt.StartAt, appt.EndAt, appt.Status)
}

func submitCode(ctx context.Context, c *client, sessionID, code string) (session, error) {
	in := bufio.NewReader(os.Stdin)
	for {
		if code == "" {
			fmt.Print("code: ")
			line, err := in.ReadString('\n')
			if err != nil {
				return session{}, err
			}
			code = strings.TrimSpace(line)
		}
		sess, err := c.verify(ctx, sessionID, code)
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Kind == "code_mismatch" {
			fmt.Println("wrong code:", apiErr.Msg)
			code = ""
			continue
		}
		return sess, err
	}
}

// waitVerified polls the session until the out-of-band verification lands.
func waitVerified(ctx context.Context, c *client, sessionID string, limit time.Duration) (session, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		sess, err := c.status(ctx, sessionID)
		if err != nil {
			return session{}, err
		}
		if sess.State == "VERIFIED" {
			return sess, nil
		}
		select {
		case <-ctx.Done():
			return session{}, fmt.Errorf("session still %s: %w", sess.State, ctx.Err())
		case <-tick.C:
		}
	}
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
