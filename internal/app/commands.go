package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sakif/service-review/internal/apperror"
	"github.com/sakif/service-review/internal/controller"
	"github.com/sakif/service-review/internal/model"
)

// ErrUsage is returned for a malformed command line. The usage text has
// already been printed.
var ErrUsage = errors.New("app: usage error")

type command struct {
	usage   string
	summary string
	run     func(a *App, ctx context.Context, args []string) error
}

// commands is filled in by init: the run functions read it for their usage
// line, which a plain initializer would turn into a cycle.
var commands map[string]command

func init() {
	commands = map[string]command{
		"register":       {"register --email E [--password P] [--name N] [--photo URL]", "create an account and sign in", (*App).runRegister},
		"login":          {"login --email E [--password P]", "sign in with email and password", (*App).runLogin},
		"login-google":   {"login-google", "sign in with Google", (*App).runLoginGoogle},
		"logout":         {"logout", "sign out", (*App).runLogout},
		"whoami":         {"whoami", "show the signed-in user", (*App).runWhoami},
		"profile":        {"profile [--name N] [--photo URL]", "update your display name and photo", (*App).runProfile},
		"home":           {"home", "featured services and site counters", (*App).runHome},
		"services":       {"services [--search S] [--category C]", "list services", (*App).runServices},
		"browse":         {"browse [--category C]", "search services interactively", (*App).runBrowse},
		"service":        {"service <id>", "show a service and its reviews", (*App).runService},
		"add-service":    {"add-service --title T --company C --description D --category C --price P --image URL [--website URL]", "add a service", (*App).runAddService},
		"my-services":    {"my-services", "list the services you added", (*App).runMyServices},
		"update-service": {"update-service <id> [--title T] [--company C] [--description D] [--category C] [--price P] [--image URL] [--website URL]", "change a service you added", (*App).runUpdateService},
		"delete-service": {"delete-service <id> [--yes]", "delete a service you added", (*App).runDeleteService},
		"review":         {"review <service-id> --rating 1-5 --text T", "review a service", (*App).runReview},
		"my-reviews":     {"my-reviews", "list your reviews", (*App).runMyReviews},
		"update-review":  {"update-review <id> [--rating 1-5] [--text T]", "change one of your reviews", (*App).runUpdateReview},
		"delete-review":  {"delete-review <id> [--yes]", "delete one of your reviews", (*App).runDeleteReview},
		"recent-reviews": {"recent-reviews", "the latest reviews on the site", (*App).runRecentReviews},
	}
}

// Run executes one command line, e.g. ["services", "--search", "pizza"].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.printUsage()
		if len(args) == 0 {
			return ErrUsage
		}
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(a.out, "unknown command %q\n\n", args[0])
		a.printUsage()
		return ErrUsage
	}
	return cmd.run(a, ctx, args[1:])
}

func (a *App) printUsage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(a.out, "usage: reviewctl <command> [flags]")
	fmt.Fprintln(a.out)
	for _, name := range names {
		fmt.Fprintf(a.out, "  %-15s %s\n", name, commands[name].summary)
	}
}

// newFlags returns a flag set that reports errors instead of exiting.
func (a *App) newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.Usage = func() {
		fmt.Fprintf(a.out, "usage: reviewctl %s\n", commands[name].usage)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args, allowing flags after positional arguments
// ("delete-service abc --yes"), and checks the positional count.
func parse(fs *flag.FlagSet, args []string, positional int) ([]string, error) {
	var rest []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, ErrUsage
		}
		if fs.NArg() == 0 {
			break
		}
		rest = append(rest, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(rest) != positional {
		fs.Usage()
		return nil, ErrUsage
	}
	return rest, nil
}

// =========================================================================
// AUTH
// =========================================================================

func (a *App) runRegister(ctx context.Context, args []string) error {
	fs := a.newFlags("register")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted if empty)")
	name := fs.String("name", "", "display name")
	photo := fs.String("photo", "", "photo URL")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	if err := a.askPassword(password); err != nil {
		return err
	}

	identity, err := a.auth.Register(ctx, *email, *password, *name, *photo)
	if err != nil {
		return err
	}
	a.printIdentity(identity)
	return nil
}

func (a *App) runLogin(ctx context.Context, args []string) error {
	fs := a.newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted if empty)")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	if err := a.askPassword(password); err != nil {
		return err
	}

	identity, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	a.printIdentity(identity)
	return nil
}

func (a *App) runLoginGoogle(ctx context.Context, args []string) error {
	if _, err := parse(a.newFlags("login-google"), args, 0); err != nil {
		return err
	}
	identity, err := a.auth.LoginWithFederatedProvider(ctx)
	if err != nil {
		return err
	}
	a.printIdentity(identity)
	return nil
}

func (a *App) runLogout(ctx context.Context, args []string) error {
	if _, err := parse(a.newFlags("logout"), args, 0); err != nil {
		return err
	}
	return a.auth.Logout(ctx)
}

func (a *App) runWhoami(ctx context.Context, args []string) error {
	if _, err := parse(a.newFlags("whoami"), args, 0); err != nil {
		return err
	}
	identity, err := a.store.Await(ctx)
	if err != nil {
		return err
	}
	if identity == nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}
	a.printIdentity(identity)
	return nil
}

func (a *App) runProfile(ctx context.Context, args []string) error {
	fs := a.newFlags("profile")
	name := fs.String("name", "", "display name")
	photo := fs.String("photo", "", "photo URL")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	current, err := a.store.Await(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return apperror.Unauthenticated()
	}
	// Unset flags keep the current values.
	if !isSet(fs, "name") {
		*name = current.DisplayName
	}
	if !isSet(fs, "photo") {
		*photo = current.PhotoURL
	}

	identity, err := a.auth.UpdateProfile(ctx, *name, *photo)
	if err != nil {
		return err
	}
	a.printIdentity(identity)
	return nil
}

func (a *App) askPassword(password *string) error {
	if *password != "" {
		return nil
	}
	p, err := a.prompt("Password")
	if err != nil {
		return err
	}
	*password = p
	return nil
}

// =========================================================================
// BROWSING
// =========================================================================

func (a *App) runHome(ctx context.Context, args []string) error {
	if _, err := parse(a.newFlags("home"), args, 0); err != nil {
		return err
	}
	home := controller.NewHome(a.client, a.notifier, a.logger)
	if err := home.Load(ctx); err != nil {
		return err
	}
	a.printStats(home.Stats())
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Featured services")
	a.printServices(home.Featured(), "No services yet.")
	return nil
}

func (a *App) runServices(ctx context.Context, args []string) error {
	fs := a.newFlags("services")
	search := fs.String("search", "", "text to search in title and company")
	category := fs.String("category", model.CategoryAll, "category, or all")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	list := controller.NewServiceList(a.client, a.notifier, a.logger)
	defer list.Close()
	if err := list.Fetch(ctx, model.ServiceFilter{Search: *search, Category: *category}); err != nil {
		return err
	}
	a.printServices(list.State().Services, "No services found.")
	return nil
}

// runBrowse is the All Services page on a terminal: every input line is the
// new content of the search box, ":cat X" picks a category and ":q" quits.
// Results are printed whenever a fetch lands, including debounced ones.
func (a *App) runBrowse(ctx context.Context, args []string) error {
	fs := a.newFlags("browse")
	category := fs.String("category", model.CategoryAll, "initial category, or all")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	list := controller.NewServiceList(a.client, a.notifier, a.logger,
		controller.WithDebounce(a.cfg.SearchDebounce),
		controller.WithListener(func(st controller.ServiceListState) {
			if st.Loading {
				return
			}
			a.printBrowseState(st)
		}),
	)
	defer list.Close()

	fmt.Fprintln(a.out, "Type to search, :cat <category|all> to filter, :q to quit.")
	if err := list.Fetch(ctx, model.ServiceFilter{Category: *category}); err != nil && !errors.Is(err, apperror.ErrNetwork) {
		return err
	}

	for {
		line, err := a.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("app: reading input: %w", err)
		}
		atEOF := err != nil

		if !atEOF || line != "" {
			switch {
			case line == ":q":
				return nil
			case strings.HasPrefix(line, ":cat "):
				c := strings.TrimSpace(strings.TrimPrefix(line, ":cat "))
				if err := list.SetCategory(ctx, c); errors.Is(err, apperror.ErrValidation) {
					fmt.Fprintln(a.out, err.Error())
				}
			default:
				list.SetQuery(line)
			}
		}

		if atEOF {
			// No more typing: send what the box holds instead of waiting.
			if err := list.Flush(ctx); err != nil && !controller.IsSuperseded(err) && !errors.Is(err, apperror.ErrNetwork) {
				return err
			}
			return nil
		}
	}
}

func (a *App) runService(ctx context.Context, args []string) error {
	rest, err := parse(a.newFlags("service"), args, 1)
	if err != nil {
		return err
	}
	detail := controller.NewServiceDetail(a.client, a.store, a.notifier, a.logger)
	if err := detail.Load(ctx, rest[0]); err != nil {
		return err
	}
	a.printServiceDetail(detail.Service(), detail.Reviews())
	return nil
}

func (a *App) runRecentReviews(ctx context.Context, args []string) error {
	if _, err := parse(a.newFlags("recent-reviews"), args, 0); err != nil {
		return err
	}
	recent := controller.NewRecentReviews(a.client, a.notifier, a.logger)
	reviews, err := recent.Load(ctx)
	if err != nil {
		return err
	}
	a.printReviews(reviews, "No reviews yet.")
	return nil
}

// =========================================================================
// MY SERVICES
// =========================================================================

func (a *App) runAddService(ctx context.Context, args []string) error {
	fs := a.newFlags("add-service")
	var form model.ServiceForm
	fs.StringVar(&form.Title, "title", "", "service title")
	fs.StringVar(&form.Company, "company", "", "company name")
	fs.StringVar(&form.Website, "website", "", "company website")
	fs.StringVar(&form.Description, "description", "", "description")
	fs.StringVar(&form.Category, "category", "", "one of "+strings.Join(model.Categories, ", "))
	fs.Float64Var(&form.Price, "price", 0, "price")
	fs.StringVar(&form.ImageURL, "image", "", "image URL")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	// A successful create lands on the owner's list, fetched fresh.
	nav := controller.NavigatorFunc(func(ctx context.Context, route string) {
		if route == controller.RouteMyServices {
			_ = a.showMyServices(ctx)
		}
	})
	editor := controller.NewServiceEditor(a.client, a.store, nav, a.notifier, a.logger)
	_, err := editor.Create(ctx, form)
	return err
}

func (a *App) runMyServices(ctx context.Context, args []string) error {
	if _, err := parse(a.newFlags("my-services"), args, 0); err != nil {
		return err
	}
	return a.showMyServices(ctx)
}

func (a *App) showMyServices(ctx context.Context) error {
	mine := controller.NewMyServices(a.client, a.store, a.notifier, a.logger)
	services, err := mine.Load(ctx)
	if err != nil {
		return err
	}
	a.printServices(services, "You have not added any services yet.")
	return nil
}

func (a *App) runUpdateService(ctx context.Context, args []string) error {
	fs := a.newFlags("update-service")
	title := fs.String("title", "", "service title")
	company := fs.String("company", "", "company name")
	website := fs.String("website", "", "company website")
	description := fs.String("description", "", "description")
	category := fs.String("category", "", "one of "+strings.Join(model.Categories, ", "))
	price := fs.Float64("price", 0, "price")
	image := fs.String("image", "", "image URL")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	// Only the flags given on the command line go into the PATCH.
	var patch model.ServicePatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = title
		case "company":
			patch.Company = company
		case "website":
			patch.Website = website
		case "description":
			patch.Description = description
		case "category":
			patch.Category = category
		case "price":
			patch.Price = price
		case "image":
			patch.ImageURL = image
		}
	})

	mine := controller.NewMyServices(a.client, a.store, a.notifier, a.logger)
	if err := mine.Update(ctx, rest[0], patch); err != nil {
		return err
	}
	a.printServices(mine.Services(), "You have not added any services yet.")
	return nil
}

func (a *App) runDeleteService(ctx context.Context, args []string) error {
	fs := a.newFlags("delete-service")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	mine := controller.NewMyServices(a.client, a.store, a.notifier, a.logger)
	if err := mine.Delete(ctx, rest[0], a.confirmer(*yes)); err != nil {
		return err
	}
	a.printServices(mine.Services(), "You have not added any services yet.")
	return nil
}

// =========================================================================
// REVIEWS
// =========================================================================

func (a *App) runReview(ctx context.Context, args []string) error {
	fs := a.newFlags("review")
	var form model.ReviewForm
	fs.IntVar(&form.Rating, "rating", 0, "rating from 1 to 5")
	fs.StringVar(&form.Text, "text", "", "review text")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	detail := controller.NewServiceDetail(a.client, a.store, a.notifier, a.logger)
	if err := detail.Load(ctx, rest[0]); err != nil {
		return err
	}
	if _, err := detail.SubmitReview(ctx, form); err != nil {
		return err
	}
	a.printServiceDetail(detail.Service(), detail.Reviews())
	return nil
}

func (a *App) runMyReviews(ctx context.Context, args []string) error {
	if _, err := parse(a.newFlags("my-reviews"), args, 0); err != nil {
		return err
	}
	mine := controller.NewMyReviews(a.client, a.store, a.notifier, a.logger)
	reviews, err := mine.Load(ctx)
	if err != nil {
		return err
	}
	a.printReviews(reviews, "You have not written any reviews yet.")
	return nil
}

func (a *App) runUpdateReview(ctx context.Context, args []string) error {
	fs := a.newFlags("update-review")
	rating := fs.Int("rating", 0, "rating from 1 to 5")
	text := fs.String("text", "", "review text")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	var patch model.ReviewPatch
	if isSet(fs, "rating") {
		patch.Rating = rating
	}
	if isSet(fs, "text") {
		patch.ReviewText = text
	}

	mine := controller.NewMyReviews(a.client, a.store, a.notifier, a.logger)
	if err := mine.Update(ctx, rest[0], patch); err != nil {
		return err
	}
	a.printReviews(mine.Reviews(), "You have not written any reviews yet.")
	return nil
}

func (a *App) runDeleteReview(ctx context.Context, args []string) error {
	fs := a.newFlags("delete-review")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	mine := controller.NewMyReviews(a.client, a.store, a.notifier, a.logger)
	if err := mine.Delete(ctx, rest[0], a.confirmer(*yes)); err != nil {
		return err
	}
	a.printReviews(mine.Reviews(), "You have not written any reviews yet.")
	return nil
}

func (a *App) confirmer(yes bool) controller.Confirmer {
	if yes {
		return controller.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
	}
	return controller.ConfirmFunc(a.confirm)
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
