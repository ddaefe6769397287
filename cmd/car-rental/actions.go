package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/audit"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/internal/service"
	"github.com/amirk1998/car-rental-client/pkg/errors"
	"github.com/amirk1998/car-rental-client/pkg/money"
	"github.com/amirk1998/car-rental-client/pkg/validator"
)

// report prints the one line the user sees for err and keeps the detail in
// the diagnostic log.
func (app *Application) report(err error) {
	app.ui.Printf("Error: %s\n", errors.UserMessage(err))
	app.log.Debug("command failed", zap.Error(err))
}

func (app *Application) requireLogin() error {
	if !app.session.Snapshot().Authenticated() {
		return errors.NewAppError(errors.ErrNotAuthenticated, "Please log in first", 0)
	}
	return nil
}

func (app *Application) login(ctx context.Context, username, password string) error {
	var err error
	if username == "" {
		if username, err = app.ui.Prompt("Username"); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = app.ui.Secret("Password"); err != nil {
			return err
		}
	}

	profile, err := app.authService.Login(ctx, username, password)
	if err != nil {
		return err
	}
	app.ui.Printf("Welcome, %s!\n", profile.FullName())
	return nil
}

func (app *Application) register(ctx context.Context) error {
	var req models.RegisterRequest
	fields := []struct {
		label  string
		target *string
		secret bool
	}{
		{"Username", &req.Username, false},
		{"First name", &req.FirstName, false},
		{"Last name", &req.LastName, false},
		{"Phone (+998XXXXXXXXX)", &req.PhoneNumber, false},
		{"Email", &req.Email, false},
		{"Password", &req.Password, true},
		{"Repeat password", &req.Password2, true},
	}
	for _, f := range fields {
		var err error
		if f.secret {
			*f.target, err = app.ui.Secret(f.label)
		} else {
			*f.target, err = app.ui.Prompt(f.label)
		}
		if err != nil {
			return err
		}
	}

	profile, err := app.authService.Register(ctx, req)
	if err != nil {
		return err
	}
	app.ui.Printf("Account created. Welcome, %s!\n", profile.FullName())
	return nil
}

func (app *Application) logout(ctx context.Context) {
	app.authService.Logout(ctx)
}

func (app *Application) status(ctx context.Context) {
	status := app.session.CheckAuth(ctx)
	snap := app.session.Snapshot()

	app.ui.Printf("Session:  %s\n", status)
	if snap.Username != "" {
		app.ui.Printf("User:     %s\n", snap.Username)
	}
	if snap.ExpiresAt != nil {
		state := "valid"
		if snap.ExpiresAt.Before(time.Now()) {
			state = "expired"
		}
		app.ui.Printf("Expires:  %s (%s)\n", snap.ExpiresAt.Local().Format("2006-01-02 15:04"), state)
	}
	app.ui.Printf("API:      %s\n", app.client.BaseURL())
}

func (app *Application) showProfile(ctx context.Context, refresh bool) error {
	var (
		profile *models.UserProfile
		err     error
	)
	if refresh {
		if err := app.requireLogin(); err != nil {
			return err
		}
		profile, err = app.authService.RefreshProfile(ctx)
	} else {
		var ok bool
		profile, ok, err = app.session.Profile(ctx)
		if err == nil && !ok {
			return errors.NewAppError(errors.ErrRecordNotFound, "No cached profile. Log in or use --refresh", 0)
		}
	}
	if err != nil {
		return err
	}

	app.ui.Printf("Username: %s\n", profile.Username)
	app.ui.Printf("Name:     %s\n", profile.FullName())
	app.ui.Printf("Phone:    %s\n", profile.PhoneNumber)
	app.ui.Printf("Email:    %s\n", profile.Email)
	return nil
}

func (app *Application) updateProfile(ctx context.Context) error {
	if err := app.requireLogin(); err != nil {
		return err
	}

	current, _, err := app.session.Profile(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		current = &models.UserProfile{}
	}

	var req models.UpdateProfileRequest
	if req.FirstName, err = app.ui.PromptDefault("First name", current.FirstName); err != nil {
		return err
	}
	if req.LastName, err = app.ui.PromptDefault("Last name", current.LastName); err != nil {
		return err
	}
	if req.PhoneNumber, err = app.ui.PromptDefault("Phone", current.PhoneNumber); err != nil {
		return err
	}
	if req.Email, err = app.ui.PromptDefault("Email", current.Email); err != nil {
		return err
	}

	if _, err := app.authService.UpdateProfile(ctx, req); err != nil {
		return err
	}
	app.ui.Println("Profile updated.")
	return nil
}

func (app *Application) listCars(ctx context.Context, filter models.CarFilter) error {
	if err := app.requireLogin(); err != nil {
		return err
	}

	home, err := app.catalog.Home(ctx)
	if err != nil {
		return err
	}

	cars := service.Filter(home.Cars, filter)
	app.ui.Printf("Brands: %s\n\n", strings.Join(home.Brands, ", "))
	if len(cars) == 0 {
		app.ui.Println("No cars found")
		return nil
	}

	w := tabwriter.NewWriter(app.ui.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAR\tBRAND\tYEAR\tSEATS\tPRICE/DAY")
	for _, c := range cars {
		fmt.Fprintf(w, "%d\t%s %s\t%s\t%d\t%d\t%s\n",
			c.ID, c.Name, c.Model, c.BrandName, c.Year, c.Seats, money.FormatWithCurrency(c.PricePerDay.String()))
	}
	return w.Flush()
}

func (app *Application) showCar(ctx context.Context, id int64) error {
	if err := app.requireLogin(); err != nil {
		return err
	}

	car, err := app.catalog.Car(ctx, id)
	if err != nil {
		return err
	}

	app.ui.Printf("%s %s (%d)\n", car.Name, car.Model, car.Year)
	app.ui.Printf("Brand:     %s\n", car.BrandName)
	app.ui.Printf("Seats:     %d\n", car.Seats)
	app.ui.Printf("Price/day: %s\n", money.FormatWithCurrency(car.PricePerDay.String()))
	if car.Description != "" {
		app.ui.Printf("\n%s\n", car.Description)
	}
	return nil
}

func (app *Application) listBrands(ctx context.Context) error {
	if err := app.requireLogin(); err != nil {
		return err
	}

	brands, err := app.catalog.Brands(ctx)
	if err != nil {
		return err
	}
	for _, name := range service.BrandChoices(brands) {
		app.ui.Println(name)
	}
	return nil
}

// book fills whatever req is missing from prompts, shows the estimate and
// submits once after confirmation.
func (app *Application) book(ctx context.Context, req *models.BookingRequest) error {
	if err := app.requireLogin(); err != nil {
		return err
	}

	if err := app.promptBooking(req); err != nil {
		return err
	}

	if car, err := app.catalog.Car(ctx, req.CarID); err == nil {
		if start, end, err := validator.New().ParseDateRange(req.StartDate, req.EndDate); err == nil {
			days := money.RentalDays(start, end)
			if total, err := money.Estimate(car.PricePerDay.String(), days); err == nil {
				app.ui.Printf("\n%s %s, %d day(s): about %s %s\n", car.Name, car.Model, days, total, money.Currency)
			}
		}
	}

	ok, err := app.ui.Confirm("Book and pay now?")
	if err != nil {
		return err
	}
	if !ok {
		app.ui.Println("Cancelled")
		return nil
	}

	result, err := app.booking.CreateBooking(ctx, req)
	if err != nil {
		if result != nil && result.IdempotencyKey != "" && !errors.Is(err, errors.ErrDuplicateSubmission) {
			app.ui.Printf("To retry this same booking use --key %s\n", result.IdempotencyKey)
		}
		return err
	}

	app.ui.Printf("%s (booking #%d)\n", result.Message, result.BookingID)
	return nil
}

func (app *Application) promptBooking(req *models.BookingRequest) error {
	ui := app.ui
	var err error

	if req.CarID == 0 {
		raw, err := ui.Prompt("Car ID")
		if err != nil {
			return err
		}
		if _, err := fmt.Sscan(raw, &req.CarID); err != nil {
			return errors.NewAppError(errors.ErrInvalidBookingData, "Car ID must be a number", 0)
		}
	}

	prompts := []struct {
		label  string
		target *string
		secret bool
	}{
		{"Start date (YYYY-MM-DD)", &req.StartDate, false},
		{"End date (YYYY-MM-DD)", &req.EndDate, false},
		{"Phone (+998XXXXXXXXX)", &req.PhoneNumber, false},
		{"Card number", &req.PaymentDetails.CardNumber, true},
		{"Card expiry (MM/YY)", &req.PaymentDetails.ExpiryDate, false},
		{"CVV", &req.PaymentDetails.CVV, true},
		{"Card holder name", &req.PaymentDetails.CardHolderName, false},
	}
	for _, p := range prompts {
		if *p.target != "" {
			continue
		}
		if p.secret {
			*p.target, err = ui.Secret(p.label)
		} else {
			*p.target, err = ui.Prompt(p.label)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (app *Application) listBookings(ctx context.Context) error {
	if err := app.requireLogin(); err != nil {
		return err
	}

	bookings, err := app.booking.Bookings(ctx)
	if err != nil {
		return err
	}
	if len(bookings) == 0 {
		app.ui.Println("No bookings yet")
		return nil
	}

	w := tabwriter.NewWriter(app.ui.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAR\tFROM\tTO\tSTATUS\tTOTAL")
	for _, b := range bookings {
		name := b.CarName
		if name == "" {
			name = fmt.Sprintf("#%d", b.Car)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, name, b.StartDate, b.EndDate, b.Status, money.FormatWithCurrency(b.TotalPrice.String()))
	}
	return w.Flush()
}

// listAttempts prints the local ledger rows in status.
func (app *Application) listAttempts(ctx context.Context, status models.AttemptStatus) error {
	if app.ledger == nil {
		return errors.NewAppError(errors.ErrRecordNotFound, "No local ledger in ephemeral mode", 0)
	}

	attempts, err := app.ledger.ListByStatus(ctx, status, 50)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		app.ui.Printf("No %s attempts\n", status)
		return nil
	}

	w := tabwriter.NewWriter(app.ui.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCAR\tBOOKING\tSTATUS\tUPDATED\tLAST ERROR")
	for _, a := range attempts {
		booking := "-"
		if a.BookingID != nil {
			booking = fmt.Sprintf("%d", *a.BookingID)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			a.IdempotencyKey, a.CarID, booking, a.Status, a.UpdatedAt.Local().Format("2006-01-02 15:04"), a.LastError)
	}
	return w.Flush()
}

func (app *Application) downloadContract(ctx context.Context, bookingID int64, out string, archived bool) error {
	var (
		pdf  []byte
		path string
		err  error
	)
	if archived {
		pdf, err = app.contracts.Archived(bookingID)
	} else {
		if err := app.requireLogin(); err != nil {
			return err
		}
		pdf, path, err = app.contracts.Download(ctx, bookingID)
	}
	if err != nil {
		return err
	}

	if path != "" {
		app.ui.Printf("Archived to %s\n", path)
	}
	if out == "" {
		out = fmt.Sprintf("contract_%d.pdf", bookingID)
	}
	if err := os.WriteFile(out, pdf, 0600); err != nil {
		return fmt.Errorf("failed to write contract: %w", err)
	}
	app.ui.Printf("Contract saved to %s\n", out)
	return nil
}

func (app *Application) reconcile(ctx context.Context) error {
	if app.ledger == nil {
		return errors.NewAppError(errors.ErrRecordNotFound, "No local ledger in ephemeral mode", 0)
	}
	if err := app.requireLogin(); err != nil {
		return err
	}

	report, err := app.reconciler.ReconcileOnce(ctx)
	if err != nil {
		return err
	}
	app.ui.Printf("Claimed %d, compensated %d, still failing %d\n", report.Claimed, report.Compensated, report.Failed)

	if report.Failed > 0 {
		return app.listAttempts(ctx, models.AttemptCompensationFailed)
	}
	return nil
}

func (app *Application) showAudit(action string, limit int) error {
	if app.db == nil {
		return errors.NewAppError(errors.ErrRecordNotFound, "The audit trail is only queryable with the local store", 0)
	}

	events, err := app.auditLogger.QueryLogs(audit.QueryFilters{Action: action, Limit: limit})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		app.ui.Println("No audit logs found")
		return nil
	}

	for _, e := range events {
		app.ui.Printf("[%s] %s %s success=%v", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Level, e.Action, e.Success)
		if e.BookingID != nil {
			app.ui.Printf(" booking=%d", *e.BookingID)
		}
		if e.ErrorMsg != "" {
			app.ui.Printf(" error=%q", e.ErrorMsg)
		}
		app.ui.Println()
	}
	return nil
}
