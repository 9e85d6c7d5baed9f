package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunzadent/dentclient/accounts"
	"github.com/tunzadent/dentclient/gateway"
	"github.com/tunzadent/dentclient/internal/config"
	"github.com/tunzadent/dentclient/predictions"
	"github.com/tunzadent/dentclient/session"
	"github.com/tunzadent/dentclient/session/filerepo"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("dentctl failed")
	}
}

type app struct {
	cfg         config.Config
	store       *session.Store
	accounts    *accounts.Service
	predictions *predictions.Service
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if c.GetEnv() != "DEV" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	repo, err := filerepo.New(c.GetDataFolder())
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	store, err := session.NewStore(repo)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	client, err := gateway.New(c.GetAPIBaseURL(), store,
		gateway.WithTimeout(c.GetHTTPTimeout()),
		gateway.WithOnSessionExpired(func() {
			fmt.Fprintln(os.Stderr, "Session expired. Run `dentctl login` to sign in again.")
		}),
	)
	if err != nil {
		return err
	}

	accountsService, err := accounts.NewService(client, store)
	if err != nil {
		return err
	}
	predictionsService, err := predictions.NewService(client)
	if err != nil {
		return err
	}

	a := &app{cfg: c, store: store, accounts: accountsService, predictions: predictionsService}

	if len(args) == 0 {
		a.usage()
		return nil
	}

	ctx := context.Background()
	switch args[0] {
	case "login":
		return a.login(ctx, args[1:])
	case "logout":
		a.accounts.Logout()
		fmt.Println("Logged out.")
		return nil
	case "whoami":
		return a.whoami()
	case "register":
		return a.register(ctx, args[1:])
	case "verify-email":
		return a.verifyEmail(ctx, args[1:])
	case "stats":
		return a.stats(ctx)
	case "patients":
		return a.patients(ctx)
	case "patient-add":
		return a.patientAdd(ctx, args[1:])
	case "patient-rm":
		return a.patientRemove(ctx, args[1:])
	case "upload":
		return a.upload(ctx, args[1:])
	case "bulk-upload":
		return a.bulkUpload(ctx, args[1:])
	case "scans":
		return a.scans(ctx, args[1:])
	case "scan":
		return a.scan(ctx, args[1:])
	case "backup-codes":
		return a.backupCodes(ctx)
	default:
		a.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) usage() {
	figure.NewFigure(a.cfg.GetAppName(), "cybermedium", true).Print()
	fmt.Println()
	fmt.Println(`Usage: dentctl <command> [flags]

Commands:
  login          Sign in (handles 2FA setup and challenges)
  logout         Destroy the local session
  whoami         Show the signed-in user
  register       Create an account
  verify-email   Redeem an email-verification token
  stats          Dashboard counters
  patients       List patients
  patient-add    Register a patient
  patient-rm     Delete a patient
  upload         Upload one X-ray for analysis
  bulk-upload    Upload every image in a folder
  scans          Show a patient's scan history
  scan           Show one scan in detail
  backup-codes   Regenerate 2FA backup codes`)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password")
	code := fs.String("code", "", "current 2FA code (if prompted before)")
	fs.Parse(args)

	creds := accounts.Credentials{Username: *username, Password: *password, TwoFACode: *code}
	outcome, err := a.accounts.Login(ctx, creds)
	if err != nil {
		return err
	}

	switch outcome.Status {
	case accounts.LoginSucceeded:
		fmt.Printf("Welcome back, %s.\n", outcome.Identity.FullName())
		return nil

	case accounts.LoginEmailVerificationRequired:
		fmt.Printf("Please verify your email (%s) before logging in.\n", outcome.Email)
		return nil

	case accounts.LoginTwoFARequired:
		creds.TwoFACode = prompt("Enter your 6-digit 2FA code: ")
		retry, err := a.accounts.Login(ctx, creds)
		if err != nil {
			return err
		}
		if retry.Status != accounts.LoginSucceeded {
			return fmt.Errorf("unexpected login outcome %q", retry.Status)
		}
		fmt.Printf("Welcome back, %s.\n", retry.Identity.FullName())
		return nil

	case accounts.LoginTwoFASetupRequired:
		return a.completeTwoFASetup(ctx, outcome.Challenge)
	}
	return fmt.Errorf("unexpected login outcome %q", outcome.Status)
}

func (a *app) completeTwoFASetup(ctx context.Context, challenge *accounts.TwoFAChallenge) error {
	provisioning, err := a.accounts.Setup2FA(ctx, challenge)
	if err != nil {
		return err
	}

	fmt.Println("Two-factor authentication setup required.")
	fmt.Printf("Add this key to your authenticator app: %s\n", provisioning.ManualEntryKey)

	code := prompt("Enter the first 6-digit code from your app: ")
	enrollment, err := a.accounts.Complete2FA(ctx, challenge, code)
	if err != nil {
		return err
	}

	fmt.Println("2FA enabled. Store these backup codes somewhere safe:")
	for _, backupCode := range enrollment.BackupCodes {
		fmt.Printf("  %s\n", backupCode)
	}
	if enrollment.Identity != nil {
		fmt.Printf("Welcome, %s.\n", enrollment.Identity.FullName())
	}
	return nil
}

func (a *app) whoami() error {
	identity := a.store.Identity()
	if identity == nil {
		fmt.Println("Not signed in.")
		return nil
	}
	fmt.Printf("%s (%s), %s, %s\n", identity.FullName(), identity.Username, identity.Role, identity.Email)
	if expiry, ok := a.store.TokenExpiry(); ok {
		fmt.Printf("Access token expires %s\n", expiry.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	fs.Parse(args)

	result, err := a.accounts.Register(ctx, accounts.Registration{
		Username:        *username,
		Email:           *email,
		Password:        *password,
		PasswordConfirm: *password,
		FirstName:       *firstName,
		LastName:        *lastName,
		Role:            session.RoleDentist,
	})
	if err != nil {
		return describeAPIError(err)
	}
	fmt.Println(result.Message)
	return nil
}

func (a *app) verifyEmail(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify-email", flag.ExitOnError)
	token := fs.String("token", "", "verification token from the email link")
	fs.Parse(args)

	if err := a.accounts.VerifyEmail(ctx, *token); err != nil {
		return err
	}
	fmt.Println("Email verified. You can now log in.")
	return nil
}

func (a *app) stats(ctx context.Context) error {
	stats, err := a.predictions.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Analyses: %d  (with findings: %d, clear: %d)\n", stats.TotalPredictions, stats.WithCaries, stats.WithoutCaries)
	fmt.Printf("Patients: %d\n", stats.TotalPatients)
	return nil
}

func (a *app) patients(ctx context.Context) error {
	patients, err := a.predictions.Patients(ctx)
	if err != nil {
		return err
	}
	for _, p := range patients {
		fmt.Printf("%-6d %-12s %-25s scans: %d\n", p.ID, p.PatientID, p.FirstName+" "+p.LastName, p.XRayCount)
	}
	return nil
}

func (a *app) patientAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("patient-add", flag.ExitOnError)
	patientID := fs.String("patient-id", "", "clinic-assigned patient identifier")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	gender := fs.String("gender", predictions.GenderOther, "gender (M/F/O)")
	fs.Parse(args)

	created, err := a.predictions.CreatePatient(ctx, predictions.Patient{
		PatientID:   *patientID,
		FirstName:   *firstName,
		LastName:    *lastName,
		DateOfBirth: *dob,
		Gender:      *gender,
	})
	if err != nil {
		return describeAPIError(err)
	}
	fmt.Printf("Registered patient %s (#%d).\n", created.PatientID, created.ID)
	return nil
}

func (a *app) patientRemove(ctx context.Context, args []string) error {
	id, err := parseIDArg(args, "patient")
	if err != nil {
		return err
	}
	if err := a.predictions.DeletePatient(ctx, id); err != nil {
		return err
	}
	fmt.Println("Patient deleted.")
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	patientID := fs.Int64("patient", 0, "database ID of the patient")
	path := fs.String("file", "", "path to the X-ray image")
	region := fs.String("region", "", "tooth region")
	notes := fs.String("notes", "", "clinical notes")
	fs.Parse(args)

	file, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer file.Close()

	result, err := a.predictions.UploadAndPredict(ctx, predictions.Upload{
		PatientID:   *patientID,
		FileName:    filepath.Base(*path),
		Image:       file,
		ToothRegion: *region,
		Notes:       *notes,
	})
	if err != nil {
		return err
	}
	printPrediction(&result.Prediction, result.Recommendations)
	return nil
}

func (a *app) bulkUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bulk-upload", flag.ExitOnError)
	patientID := fs.Int64("patient", 0, "database ID of the patient")
	dir := fs.String("dir", ".", "folder of X-ray images")
	fs.Parse(args)

	entries, err := os.ReadDir(*dir)
	if err != nil {
		return err
	}

	var items []predictions.BulkItem
	for _, entry := range entries {
		if entry.IsDir() || !isImageName(entry.Name()) {
			continue
		}
		items = append(items, predictions.BulkItem{
			PatientID: *patientID,
			Path:      filepath.Join(*dir, entry.Name()),
		})
	}
	if len(items) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	uploader := predictions.NewBulkUploader(a.predictions, a.cfg.GetBulkUploadWorkers())
	results := uploader.UploadAll(ctx, items)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("FAILED  %s: %v\n", r.Item.Path, r.Err)
			continue
		}
		fmt.Printf("OK      %s: caries=%t (%.0f%%)\n", r.Item.Path, r.Result.Prediction.HasCaries, r.Result.Prediction.ConfidenceScore*100)
	}
	fmt.Printf("%d uploaded, %d failed.\n", len(results)-failed, failed)
	return nil
}

func (a *app) scans(ctx context.Context, args []string) error {
	id, err := parseIDArg(args, "patient")
	if err != nil {
		return err
	}
	history, err := a.predictions.PatientScans(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Scan history for %s %s (%s), %d scan(s):\n",
		history.Patient.FirstName, history.Patient.LastName, history.Patient.PatientID, history.TotalScans)
	for _, scan := range history.Scans {
		status := "no completed analysis"
		if scan.Prediction != nil {
			status = fmt.Sprintf("caries=%t (%.0f%%)", scan.Prediction.HasCaries, scan.Prediction.ConfidenceScore*100)
		}
		fmt.Printf("  #%-5d %s  %-10s %s\n", scan.ID, scan.UploadedAt.Format("2006-01-02"), scan.ImageType, status)
	}
	return nil
}

func (a *app) scan(ctx context.Context, args []string) error {
	id, err := parseIDArg(args, "scan")
	if err != nil {
		return err
	}
	details, err := a.predictions.ScanDetails(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Scan #%d (%s), uploaded %s\n", details.XRay.ID, details.XRay.ImageType, details.XRay.UploadedAt.Format("2006-01-02 15:04"))
	if details.XRay.ToothRegion != "" {
		fmt.Printf("Region: %s\n", details.XRay.ToothRegion)
	}
	if details.XRay.Notes != "" {
		fmt.Printf("Notes: %s\n", details.XRay.Notes)
	}
	if details.Prediction == nil {
		fmt.Println("No completed analysis for this scan.")
		return nil
	}
	printPrediction(details.Prediction, details.Recommendations)
	if details.Explainability != nil && details.Explainability.Description != "" {
		fmt.Printf("Explainability: %s\n", details.Explainability.Description)
	}
	return nil
}

func (a *app) backupCodes(ctx context.Context) error {
	codes, err := a.accounts.RegenerateBackupCodes(ctx)
	if err != nil {
		return err
	}
	fmt.Println("New backup codes (the old ones no longer work):")
	for _, code := range codes {
		fmt.Printf("  %s\n", code)
	}
	return nil
}

func printPrediction(prediction *predictions.Prediction, recommendations *predictions.Recommendations) {
	verdict := "no caries detected"
	if prediction.HasCaries {
		verdict = "caries detected"
	}
	fmt.Printf("Result: %s (confidence %.1f%%, model %s)\n", verdict, prediction.ConfidenceScore*100, prediction.ModelVersion)
	if recommendations != nil && recommendations.Severity != "" {
		fmt.Printf("Assessment: %s (urgency: %s)\n", recommendations.Severity, recommendations.UrgencyLevel)
		for _, action := range recommendations.ClinicalActions {
			fmt.Printf("  - %s\n", action)
		}
	}
}

// describeAPIError expands field validation errors so form-style rejections
// are readable on the terminal.
func describeAPIError(err error) error {
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return err
	}
	var sb strings.Builder
	sb.WriteString("the server rejected the request:")
	for field, messages := range apiErr.Fields {
		for _, message := range messages {
			sb.WriteString(fmt.Sprintf("\n  %s: %s", field, message))
		}
	}
	return errors.New(sb.String())
}

func parseIDArg(args []string, what string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s ID is required", what)
	}
	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID %q", what, args[0])
	}
	return id, nil
}

func isImageName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}

func prompt(message string) string {
	fmt.Print(message)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
