package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

var (
	loginUsername string

	profileRefresh bool

	carsBrand string
	carsQuery string

	bookReq models.BookingRequest

	attemptsStatus string

	contractOut      string
	contractArchived bool

	auditAction string
	auditLimit  int
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive menus (the default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.runShell(cmd.Context())
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session on this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.login(cmd.Context(), loginUsername, "")
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.register(cmd.Context())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token and profile",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app.logout(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app.status(cmd.Context())
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the cached profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.showProfile(cmd.Context(), profileRefresh)
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit name, phone and email",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.updateProfile(cmd.Context())
	},
}

var carsCmd = &cobra.Command{
	Use:   "cars",
	Short: "List available cars",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.listCars(cmd.Context(), models.CarFilter{Brand: carsBrand, Query: carsQuery})
	},
}

var carCmd = &cobra.Command{
	Use:   "car <id>",
	Short: "Show one car",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return app.showCar(cmd.Context(), id)
	},
}

var brandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "List brand filter choices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.listBrands(cmd.Context())
	},
}

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Book a car and pay for it",
	Long: `Book a car and pay for it in one step. A failed payment deletes the
booking again.

Missing values are asked for interactively; card data is never accepted as a
flag. To retry a failed attempt without booking twice, pass the key printed
with the failure as --key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := bookReq
		return app.book(cmd.Context(), &req)
	},
}

var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "List your bookings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if attemptsStatus != "" {
			return app.listAttempts(cmd.Context(), models.AttemptStatus(attemptsStatus))
		}
		return app.listBookings(cmd.Context())
	},
}

var contractCmd = &cobra.Command{
	Use:   "contract <booking-id>",
	Short: "Download the rental contract of a booking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return app.downloadContract(cmd.Context(), id, contractOut, contractArchived)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Retry deletes of bookings whose payment failed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.reconcile(cmd.Context())
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.showAudit(auditAction, auditLimit)
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (asked when empty)")

	profileCmd.Flags().BoolVar(&profileRefresh, "refresh", false, "Reload the profile from the server")
	profileCmd.AddCommand(profileUpdateCmd)

	carsCmd.Flags().StringVar(&carsBrand, "brand", models.AllBrands, "Only cars of this brand")
	carsCmd.Flags().StringVarP(&carsQuery, "search", "s", "", "Match name or model")

	bookCmd.Flags().Int64Var(&bookReq.CarID, "car", 0, "Car ID")
	bookCmd.Flags().StringVar(&bookReq.StartDate, "from", "", "Start date, YYYY-MM-DD")
	bookCmd.Flags().StringVar(&bookReq.EndDate, "to", "", "End date, YYYY-MM-DD")
	bookCmd.Flags().StringVar(&bookReq.PhoneNumber, "phone", "", "Contact phone")
	bookCmd.Flags().StringVar(&bookReq.Note, "note", "", "Note for the rental office")
	bookCmd.Flags().StringVar(&bookReq.IdempotencyKey, "key", "", "Idempotency key of an attempt to retry")

	bookingsCmd.Flags().StringVar(&attemptsStatus, "attempts", "", "Show local attempts in this status instead (e.g. compensation_failed)")

	contractCmd.Flags().StringVarP(&contractOut, "out", "o", "", "Output file (default contract_<id>.pdf)")
	contractCmd.Flags().BoolVar(&contractArchived, "archived", false, "Read the local archive instead of downloading")

	auditCmd.Flags().StringVar(&auditAction, "action", "", "Only events with this action")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of events")

	rootCmd.AddCommand(
		shellCmd,
		loginCmd,
		registerCmd,
		logoutCmd,
		statusCmd,
		profileCmd,
		carsCmd,
		carCmd,
		brandsCmd,
		bookCmd,
		bookingsCmd,
		contractCmd,
		reconcileCmd,
		auditCmd,
	)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewAppError(errors.ErrInvalidInput, "ID must be a positive number", 0)
	}
	return id, nil
}
