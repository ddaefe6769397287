package main

import (
	"context"
	"errors"
	"io"

	"github.com/amirk1998/car-rental-client/internal/models"
)

// runShell shows the login menu or the main menu, whichever the session
// navigated to last, until the user exits or input ends.
func (app *Application) runShell(ctx context.Context) error {
	app.ui.Println("===========================================")
	app.ui.Println("  Car Rental")
	app.ui.Println("===========================================")

	if app.session.Snapshot().Authenticated() {
		app.ui.navigate(screenHome)
	}
	app.startBackground(ctx)

	for ctx.Err() == nil {
		var err error
		if app.ui.current() == screenHome {
			err = app.mainMenu(ctx)
		} else {
			err = app.loginMenu(ctx)
		}

		switch {
		case errors.Is(err, errExit), errors.Is(err, io.EOF):
			app.ui.Println("Goodbye!")
			return nil
		case err != nil:
			app.report(err)
		}
	}
	return nil
}

var errExit = errors.New("exit")

func (app *Application) loginMenu(ctx context.Context) error {
	app.ui.Println("\n--- Welcome ---")
	app.ui.Println("1. Login")
	app.ui.Println("2. Register")
	app.ui.Println("0. Exit")

	choice, err := app.ui.Prompt("\nSelect option")
	if err != nil {
		return err
	}

	switch choice {
	case "1":
		return app.login(ctx, "", "")
	case "2":
		return app.register(ctx)
	case "0":
		return errExit
	default:
		app.ui.Println("Invalid option")
		return nil
	}
}

func (app *Application) mainMenu(ctx context.Context) error {
	user := app.session.Snapshot().Username
	app.ui.Printf("\n--- Main Menu (User: %s) ---\n", user)
	app.ui.Println("1. Browse cars")
	app.ui.Println("2. Car details")
	app.ui.Println("3. Book a car")
	app.ui.Println("4. My bookings")
	app.ui.Println("5. Download contract")
	app.ui.Println("6. Profile")
	app.ui.Println("7. Edit profile")
	app.ui.Println("8. Audit log")
	app.ui.Println("9. Logout")
	app.ui.Println("0. Exit")

	choice, err := app.ui.Prompt("\nSelect option")
	if err != nil {
		return err
	}

	switch choice {
	case "1":
		brand, err := app.ui.PromptDefault("Brand", models.AllBrands)
		if err != nil {
			return err
		}
		query, err := app.ui.Prompt("Search (Enter for all)")
		if err != nil {
			return err
		}
		return app.listCars(ctx, models.CarFilter{Brand: brand, Query: query})
	case "2":
		id, err := app.promptID("Car ID")
		if err != nil {
			return err
		}
		return app.showCar(ctx, id)
	case "3":
		return app.book(ctx, &models.BookingRequest{})
	case "4":
		return app.listBookings(ctx)
	case "5":
		id, err := app.promptID("Booking ID")
		if err != nil {
			return err
		}
		return app.downloadContract(ctx, id, "", false)
	case "6":
		return app.showProfile(ctx, false)
	case "7":
		return app.updateProfile(ctx)
	case "8":
		return app.showAudit("", 20)
	case "9":
		app.logout(ctx)
		return nil
	case "0":
		return errExit
	default:
		app.ui.Println("Invalid option")
		return nil
	}
}

func (app *Application) promptID(label string) (int64, error) {
	raw, err := app.ui.Prompt(label)
	if err != nil {
		return 0, err
	}
	return parseID(raw)
}
