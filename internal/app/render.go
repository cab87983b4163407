package app

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/sakif/service-review/internal/controller"
	"github.com/sakif/service-review/internal/model"
)

const dateLayout = "2006-01-02"

func (a *App) printIdentity(id *model.Identity) {
	name := id.DisplayName
	if name == "" {
		name = "(no name)"
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", name, id.Email)
}

func (a *App) printStats(s model.Stats) {
	fmt.Fprintf(a.out, "Users: %d  Services: %d  Reviews: %d\n", s.Users, s.Services, s.Reviews)
}

func (a *App) printServices(services []model.Service, empty string) {
	if len(services) == 0 {
		fmt.Fprintln(a.out, empty)
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCOMPANY\tCATEGORY\tPRICE\tRATING")
	for _, s := range services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			s.ID, s.Title, s.Company, s.Category, s.Price, formatRating(s.Rating, s.ReviewCount))
	}
	tw.Flush()
}

func (a *App) printServiceDetail(s *model.Service, reviews []model.Review) {
	fmt.Fprintf(a.out, "%s by %s\n", s.Title, s.Company)
	fmt.Fprintf(a.out, "Category: %s  Price: %.2f  Rating: %s\n", s.Category, s.Price, formatRating(s.Rating, s.ReviewCount))
	if s.Website != "" {
		fmt.Fprintf(a.out, "Website: %s\n", s.Website)
	}
	fmt.Fprintf(a.out, "Added %s by %s\n", s.AddedDate.Format(dateLayout), s.UserEmail)
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, s.Description)
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "Reviews (%d)\n", len(reviews))
	a.printReviews(reviews, "No reviews yet. Be the first to review!")
}

func (a *App) printReviews(reviews []model.Review, empty string) {
	if len(reviews) == 0 {
		fmt.Fprintln(a.out, empty)
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERVICE\tRATING\tBY\tDATE\tREVIEW")
	for _, r := range reviews {
		by := r.UserName
		if by == "" {
			by = r.UserEmail
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.ServiceTitle, stars(r.Rating), by, r.PostedDate.Format(dateLayout), oneLine(r.ReviewText, 60))
	}
	tw.Flush()
}

// printBrowseState is the browse listener. It runs on whichever goroutine
// completed the fetch.
func (a *App) printBrowseState(st controller.ServiceListState) {
	label := st.Filter.Search
	if label == "" {
		label = "(any)"
	}
	category := st.Filter.Category
	if category == "" {
		category = model.CategoryAll
	}
	fmt.Fprintf(a.out, "-- search: %s  category: %s\n", label, category)
	if !st.Loaded {
		return
	}
	a.printServices(st.Services, "No services found.")
}

func formatRating(rating float64, count int) string {
	if count == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f (%d)", rating, count)
}

func stars(n int) string {
	if n < model.MinRating || n > model.MaxRating {
		return fmt.Sprint(n)
	}
	return strings.Repeat("*", n) + strings.Repeat(".", model.MaxRating-n)
}

// oneLine flattens s and cuts it to limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
