package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fyd-app/go-fyd-client/api"
	"github.com/fyd-app/go-fyd-client/auth"
	"github.com/fyd-app/go-fyd-client/events"
	"github.com/fyd-app/go-fyd-client/internal/utils"
	"github.com/fyd-app/go-fyd-client/sessions"
)

func runLogin(ctx context.Context, authClient *auth.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	record, err := authClient.Login(ctx, auth.LoginCredentials{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s)\n", record.User.Name, record.User.Email)
	return nil
}

func runRegister(ctx context.Context, authClient *auth.Client, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	city := fs.String("city", "", "home city")
	interests := fs.String("interests", "", "comma-separated interests")
	if err := fs.Parse(args); err != nil {
		return err
	}

	record, err := authClient.Register(ctx, auth.RegisterCredentials{
		Name:      *name,
		Email:     *email,
		Password:  *password,
		City:      *city,
		Interests: splitList(*interests),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Welcome, %s! Your account is ready.\n", record.User.Name)
	return nil
}

func runEvents(ctx context.Context, authClient *auth.Client, service *api.EventsService) error {
	record, err := requireSession(ctx, authClient)
	if err != nil {
		return err
	}

	list, err := service.Fetch(ctx, record.User.City, record.User.Interests)
	if err != nil {
		return err
	}
	printEventFeed(record.User.City, list)
	return nil
}

func runUserEvents(ctx context.Context, authClient *auth.Client, service *api.EventsService) error {
	record, err := requireSession(ctx, authClient)
	if err != nil {
		return err
	}

	list, err := service.UserEvents(ctx, record.User.ID)
	if err != nil {
		return err
	}
	printEventFeed("your list", list)
	return nil
}

func runInterests(ctx context.Context, service *api.CategoriesService) error {
	interests, err := service.Interests(ctx)
	if err != nil {
		return err
	}
	for _, interest := range interests {
		fmt.Printf("  %s\n", interest.Name)
	}
	return nil
}

func runUpdate(ctx context.Context, authClient *auth.Client, service *api.UsersService, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	name := fs.String("name", "", "new display name")
	email := fs.String("email", "", "new account email")
	city := fs.String("city", "", "new home city")
	interests := fs.String("interests", "", "new comma-separated interests")
	age := fs.Int("age", 0, "new age")
	if err := fs.Parse(args); err != nil {
		return err
	}

	record, err := requireSession(ctx, authClient)
	if err != nil {
		return err
	}

	var update api.UserUpdate
	if *name != "" {
		update.Name = utils.Ptr(*name)
	}
	if *email != "" {
		update.Email = utils.Ptr(*email)
	}
	if *city != "" {
		update.City = utils.Ptr(*city)
	}
	if *interests != "" {
		update.Interests = utils.Ptr(splitList(*interests))
	}
	if *age > 0 {
		update.Age = utils.Ptr(*age)
	}

	if err := service.Update(ctx, record.User.ID, update); err != nil {
		return err
	}
	fmt.Println("Profile updated.")
	return nil
}

func runWhoami(ctx context.Context, authClient *auth.Client) error {
	record, err := authClient.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if record == nil {
		fmt.Println("Not signed in.")
		return nil
	}

	fmt.Printf("%s <%s>\n", record.User.Name, record.User.Email)
	fmt.Printf("  city:      %s\n", record.User.City)
	fmt.Printf("  interests: %s\n", strings.Join(record.User.Interests, ", "))

	if claims, err := sessions.ParseTokenClaims(record.AccessToken); err == nil && !claims.ExpiresAt.IsZero() {
		state := "valid until"
		if claims.Expired(time.Now()) {
			state = "expired since"
		}
		fmt.Printf("  token:     %s %s\n", state, claims.ExpiresAt.Format(time.RFC1123))
	}
	return nil
}

func runDeleteAccount(ctx context.Context, authClient *auth.Client, service *api.UsersService) error {
	// restore the stored session first so the DELETE carries the bearer token
	if _, err := requireSession(ctx, authClient); err != nil {
		return err
	}
	if err := service.DeleteAccount(ctx); err != nil {
		return err
	}
	fmt.Println("Account deleted.")
	return nil
}

func requireSession(ctx context.Context, authClient *auth.Client) (*sessions.Record, error) {
	record, err := authClient.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("not signed in, run `fyd login` first")
	}
	return record, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

func printEventFeed(scope string, list []events.Event) {
	if len(list) == 0 {
		fmt.Printf("No events found for %s.\n", scope)
		return
	}

	for _, group := range events.GroupByMonth(list) {
		fmt.Printf("\n%s %d\n", group.Month, group.Year)
		for _, event := range group.Events {
			fmt.Printf("  %s  %s", event.Date.Format("Mon 02 Jan 15:04"), event.Name)
			if event.Location != "" {
				fmt.Printf(" @ %s", event.Location)
			}
			if event.PriceMin != nil {
				fmt.Printf(" (from %.0f€)", utils.Value(event.PriceMin))
			}
			fmt.Println()
		}
	}
}
