// Command wardctl is a terminal client for a facility-nursing API:
// sign in, browse the patient roster with vitals, follow live vitals,
// and edit the signed-in user's profile.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/oakfield/wardctl/internal/config"
	apperrors "github.com/oakfield/wardctl/internal/errors"
	"github.com/oakfield/wardctl/internal/logging"
	"github.com/oakfield/wardctl/internal/session"
	"github.com/oakfield/wardctl/internal/ward"
	"github.com/oakfield/wardctl/internal/wardapi"
)

var Version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) || errors.Is(err, apperrors.ErrNoSession) {
			fmt.Fprintln(os.Stderr, "session expired: run `wardctl login` to sign in again")
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `wardctl %s

Usage:
  wardctl login [--email addr]
  wardctl logout
  wardctl whoami
  wardctl roster [--filter s] [--format table|json|yaml]
  wardctl patient <id>
  wardctl profile [edit [--name s] [--phone s]]
  wardctl watch
`, Version)
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := session.Open(cfg.SessionPath)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer store.Close()

	api := wardapi.New(cfg.APIURL, store, &http.Client{Timeout: cfg.HTTPTimeout}, logger)
	client := ward.NewClient(api, logger)

	switch cmd := args[0]; cmd {
	case "login":
		return runLogin(ctx, client, args[1:])
	case "logout":
		client.Logout(ctx)
		fmt.Println("signed out")
		return nil
	case "whoami":
		return runWhoami(store, client)
	case "roster":
		return sessionExpiry(runRoster(ctx, client, args[1:]))
	case "patient":
		return sessionExpiry(runPatient(ctx, client, args[1:]))
	case "profile":
		return sessionExpiry(runProfile(ctx, client, args[1:]))
	case "watch":
		return runWatch(ctx, cfg, store, logger)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// sessionExpiry maps an unresolved 401 (refresh and retry both failed,
// session already cleared by the request layer) to the re-login hint.
func sessionExpiry(err error) error {
	var reqErr *wardapi.RequestError
	if errors.As(err, &reqErr) && reqErr.Status == http.StatusUnauthorized {
		return apperrors.ErrSessionExpired
	}

	return err
}

func prompt(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("no input")
	}

	return strings.TrimSpace(scanner.Text()), nil
}

func runLogin(ctx context.Context, client *ward.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		v, err := prompt("Email")
		if err != nil {
			return err
		}

		*email = v
	}

	password, err := prompt("Password")
	if err != nil {
		return err
	}

	user, err := client.Login(ctx, *email, password)
	if err != nil {
		return err
	}

	if user != nil {
		fmt.Printf("signed in as %s (%s)\n", user.Name, user.Role)
	} else {
		fmt.Println("signed in")
	}

	return nil
}

func runWhoami(store *session.Store, client *ward.Client) error {
	user := client.CachedUser()
	token := store.Access()

	if user == nil && token == "" {
		return apperrors.ErrNoSession
	}

	if user != nil {
		fmt.Printf("%s <%s> — %s\n", user.Name, user.Email, user.Role)
	}

	if token != "" {
		claims, err := ward.InspectToken(token)
		if err == nil {
			if claims.Subject != "" {
				fmt.Printf("subject: %s\n", claims.Subject)
			}

			if !claims.ExpiresAt.IsZero() {
				fmt.Printf("token expires: %s\n", claims.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			}
		}
	}

	return nil
}

func runRoster(ctx context.Context, client *ward.Client, args []string) error {
	fs := flag.NewFlagSet("roster", flag.ContinueOnError)
	filter := fs.String("filter", "", "filter by patient name or room")
	format := fs.String("format", "table", "output format: table, json, or yaml")

	if err := fs.Parse(args); err != nil {
		return err
	}

	patients, err := client.Roster(ctx)
	if err != nil {
		return err
	}

	ward.SortRoster(patients)
	patients = ward.FilterRoster(patients, *filter)

	switch *format {
	case "table":
		printRosterTable(patients)
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(patients)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		if err := enc.Encode(patients); err != nil {
			return err
		}

		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func printRosterTable(patients []ward.Patient) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tNAME\tAGE\tHR\tBP\tTEMP\tSPO2")

	for _, p := range patients {
		hr, bp, temp, spo2 := "-", "-", "-", "-"
		if v := p.Vitals; v != nil {
			hr = fmt.Sprintf("%d", v.HeartRate)
			bp = fmt.Sprintf("%d/%d", v.SystolicBP, v.DiastolicBP)
			temp = fmt.Sprintf("%.1f", v.Temperature)
			spo2 = fmt.Sprintf("%d%%", v.SpO2)
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n", p.Room, p.Name, p.Age, hr, bp, temp, spo2)
	}

	w.Flush()
}

func runPatient(ctx context.Context, client *ward.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: wardctl patient <id>")
	}

	p, err := client.Patient(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s — room %s, age %d\n", p.Name, p.Room, p.Age)

	if v := p.Vitals; v != nil {
		fmt.Printf("HR %d  BP %d/%d  Temp %.1f  SpO2 %d%%  (%s)\n",
			v.HeartRate, v.SystolicBP, v.DiastolicBP, v.Temperature, v.SpO2, v.RecordedAt)
	}

	if p.Notes != "" {
		fmt.Printf("notes: %s\n", p.Notes)
	}

	return nil
}

func runProfile(ctx context.Context, client *ward.Client, args []string) error {
	if len(args) > 0 && args[0] == "edit" {
		return runProfileEdit(ctx, client, args[1:])
	}

	user, err := client.Profile(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(user)
}

func runProfileEdit(ctx context.Context, client *ward.Client, args []string) error {
	fs := flag.NewFlagSet("profile edit", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	phone := fs.String("phone", "", "contact phone")

	if err := fs.Parse(args); err != nil {
		return err
	}

	current, err := client.Profile(ctx)
	if err != nil {
		return err
	}

	updated := *current
	if *name != "" {
		updated.Name = *name
	}

	if *phone != "" {
		updated.Phone = *phone
	}

	diff := ward.ProfileDiff(current, &updated)
	if diff == "" {
		fmt.Println("no changes")
		return nil
	}

	fmt.Print(diff)

	answer, err := prompt("Save changes? [y/N]")
	if err != nil || !strings.EqualFold(answer, "y") {
		fmt.Println("aborted")
		return nil
	}

	if _, err := client.UpdateProfile(ctx, &updated); err != nil {
		return err
	}

	fmt.Println("profile updated")

	return nil
}

func runWatch(ctx context.Context, cfg *config.Config, store *session.Store, logger *slog.Logger) error {
	token := store.Access()
	if token == "" {
		return apperrors.ErrNoSession
	}

	stream := ward.NewVitalsStream(cfg.VitalsHost, token, logger)

	if err := stream.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to vitals stream: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return stream.Listen(gctx)
	})

	g.Go(func() error {
		for update := range stream.Updates() {
			v := update.Vitals
			fmt.Printf("%s  patient=%s  HR %d  BP %d/%d  Temp %.1f  SpO2 %d%%\n",
				v.RecordedAt, update.PatientID, v.HeartRate, v.SystolicBP, v.DiastolicBP, v.Temperature, v.SpO2)
		}

		return nil
	})

	return g.Wait()
}
