// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/tomtom215/tastesync/internal/backend"
	"github.com/tomtom215/tastesync/internal/chathistory"
	"github.com/tomtom215/tastesync/internal/events"
	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/models"
	"github.com/tomtom215/tastesync/internal/session"
)

const trendingLimit = 10

// subscriber is the part of the event bus the prompt listens to.
type subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan events.Event, error)
}

// repl reads commands and chat lines and prints the results.
type repl struct {
	sess *session.Session

	mu  sync.Mutex
	out io.Writer
}

func newREPL(sess *session.Session, out io.Writer) *repl {
	return &repl{sess: sess, out: out}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// greet prints the startup summary and the conversation so far.
func (r *repl) greet(res *session.InitResult) {
	r.printf("Tastesync ready (%d messages from %s). Type /help for commands.\n",
		res.History.Count, res.History.Source)
	if res.RefreshErr != nil {
		r.printf("! %s\n", backend.UserMessage(res.RefreshErr))
	}
	r.printHistory(r.sess.History.Messages())
}

// loop handles lines from in until EOF, /quit or ctx is done.
func (r *repl) loop(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		r.printf("> ")
		select {
		case <-ctx.Done():
			r.printf("\n")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := r.handle(ctx, line); quit {
				return
			}
		}
	}
}

// handle runs one input line and reports whether the client should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)
	if !strings.HasPrefix(line, "/") {
		r.chat(logging.ContextWithOperation(ctx, "chat"), line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	ctx = logging.ContextWithOperation(ctx, strings.TrimPrefix(cmd, "/"))
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.help()
	case "/recs":
		page := 1
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				r.printf("! page must be a positive number\n")
				return false
			}
			page = n
		}
		r.showPage(r.sess.FetchPage(ctx, page))
	case "/next":
		r.showPage(r.sess.NextPage(ctx))
	case "/prev":
		r.showPage(r.sess.PrevPage(ctx))
	case "/filter":
		r.showPage(r.sess.Filter(ctx, arg))
	case "/top":
		r.top(ctx)
	case "/prefs":
		r.prefs()
	case "/history":
		r.printHistory(r.sess.History.Messages())
	case "/sessions":
		r.sessions(ctx)
	case "/categories":
		r.categories(ctx)
	case "/trending":
		r.trending(ctx)
	case "/health":
		r.health(ctx)
	case "/refresh":
		if err := r.sess.Refresh(ctx); err != nil {
			r.printf("! %s\n", backend.UserMessage(err))
			return false
		}
		r.printf("Refreshed.\n")
	case "/reset":
		r.reset(ctx)
	default:
		r.printf("! unknown command %s, try /help\n", cmd)
	}
	return false
}

func (r *repl) help() {
	r.printf(`Commands:
  /recs [page]     ranked recommendations
  /next /prev      move through the feed
  /filter <query>  search the feed (no query clears)
  /top             top-tier restaurants
  /prefs           learned preferences
  /history         this conversation
  /sessions        conversations of this device
  /categories      browse categories
  /trending        trending restaurants
  /health          backend health
  /refresh         refresh preferences and feed
  /reset           delete all history
  /quit            exit
Anything else is sent to the chatbot.
`)
}

func (r *repl) chat(ctx context.Context, text string) {
	turn, err := r.sess.Send(ctx, text)
	if err != nil {
		if backend.IsValidation(err) {
			r.printf("! %s\n", backend.UserMessage(err))
			return
		}
		// The failure notice is already in the history.
		msgs := r.sess.History.Messages()
		if n := len(msgs); n > 0 && msgs[n-1].Role == chathistory.RoleAssistant {
			r.printf("bot: %s\n", msgs[n-1].Text)
		} else {
			r.printf("! %s\n", backend.UserMessage(err))
		}
		return
	}
	for _, reply := range turn.Replies {
		r.printf("bot: %s\n", reply.Text)
	}
}

func (r *repl) printHistory(msgs []chathistory.Message) {
	if len(msgs) == 0 {
		r.printf("(no messages)\n")
		return
	}
	for _, m := range msgs {
		who := "you"
		if m.Role == chathistory.RoleAssistant {
			who = "bot"
		}
		suffix := ""
		switch m.Status {
		case chathistory.StatusPending:
			suffix = " (sending)"
		case chathistory.StatusFailed:
			suffix = " (not sent)"
		}
		r.printf("%s %s: %s%s\n", m.Timestamp.Local().Format("15:04"), who, m.Text, suffix)
	}
}

func (r *repl) showPage(page *models.RankedPage, err error) {
	if err != nil {
		r.printf("! %s\n", backend.UserMessage(err))
		st := r.sess.Feed.State()
		if st.Page == nil {
			return
		}
		r.printf("Showing saved page:\n")
		page = st.Page
	}

	mode := "popular"
	if page.Personalized {
		mode = "personalized"
	}
	p := page.Pagination
	r.printf("Page %d of %d (%d restaurants, %s)\n", p.CurrentPage, p.TotalPages, p.TotalItems, mode)
	r.printItems(page.Restaurants)
	if v := r.sess.Feed.State().Violations; len(v) > 0 {
		r.printf("! %d ranking inconsistencies on this page\n", len(v))
	}
}

func (r *repl) printItems(items []models.RecommendationItem) {
	if len(items) == 0 {
		r.printf("(no restaurants)\n")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tLOCATION\tCUISINE\tRATING\tPRICE\tSCORE")
	for _, it := range items {
		name := it.Name
		if it.IsTopTier {
			name += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f (%d)\t%s\t%.3f\n",
			it.Rank, name, it.Location, it.Cuisine, it.Rating, it.ReviewCount, it.PriceRange, it.SimilarityScore)
	}
	_ = tw.Flush()
}

func (r *repl) top(ctx context.Context) {
	res, err := r.sess.TopTier(ctx)
	if err != nil {
		r.printf("! %s\n", backend.UserMessage(err))
		return
	}
	r.printItems(res.Restaurants)
}

func (r *repl) prefs() {
	p := r.sess.Preferences.Current()
	if p == nil || p.TotalConversations == 0 {
		r.printf("No preferences learned yet. Chat a little first.\n")
		return
	}
	r.printf("Learned from %d conversations\n", p.TotalConversations)
	r.printFrequencies("Cuisines", p.PreferredCuisines)
	r.printFrequencies("Locations", p.PreferredLocations)
	r.printFrequencies("Moods", p.PreferredMoods)
	if len(p.TopSearches) > 0 {
		r.printf("Recent searches:\n")
		for _, s := range p.TopSearches {
			r.printf("  %s\n", s.Query)
		}
	}
}

func (r *repl) printFrequencies(title string, entries []models.FrequencyEntry) {
	if len(entries) == 0 {
		return
	}
	r.printf("%s:\n", title)
	for _, e := range entries {
		r.printf("  %-20s %3d  %5.1f%%\n", e.Name, e.Count, e.Percentage)
	}
}

func (r *repl) sessions(ctx context.Context) {
	hist, err := r.sess.Sessions(ctx)
	if err != nil {
		r.printf("! %s\n", backend.UserMessage(err))
		return
	}
	if len(hist.Sessions) == 0 {
		r.printf("(no sessions)\n")
		return
	}
	current := r.sess.Identity.SessionID()
	for _, s := range hist.Sessions {
		mark := " "
		if s.SessionID == current {
			mark = "*"
		}
		r.printf("%s %s  %d messages  last %s\n", mark, s.SessionID, s.MessageCount,
			s.LastActivity.Local().Format("2006-01-02 15:04"))
	}
}

func (r *repl) categories(ctx context.Context) {
	list, err := r.sess.Feed.Categories(ctx)
	if err != nil {
		r.printf("! %s\n", backend.UserMessage(err))
		return
	}
	for _, c := range list.Categories {
		r.printf("  %-20s %d\n", c.Label, c.Count)
	}
}

func (r *repl) trending(ctx context.Context) {
	res, err := r.sess.Feed.Trending(ctx, trendingLimit)
	if err != nil {
		r.printf("! %s\n", backend.UserMessage(err))
		return
	}
	r.printItems(res.Restaurants)
}

func (r *repl) health(ctx context.Context) {
	st, err := r.sess.API.Health(ctx)
	if err != nil {
		r.printf("! %s\n", backend.UserMessage(err))
		return
	}
	r.printf("Backend %s %s\n", st.Status, st.Message)
}

func (r *repl) reset(ctx context.Context) {
	out, err := r.sess.Reset(ctx)
	if err != nil {
		r.printf("! reset failed, nothing was deleted locally: %s\n", backend.UserMessage(err))
		return
	}
	r.printf("Deleted %d conversations (%s).", out.DeletedCount, out.Scope)
	if out.TokenRotated {
		r.printf(" This device now has a new identity.")
	}
	r.printf("\n")
}

// watch prints a notice whenever a background refresh changes the feed.
func (r *repl) watch(ctx context.Context, bus subscriber) error {
	ch, err := bus.Subscribe(ctx, events.TopicFeedUpdated)
	if err != nil {
		return err
	}
	go func() {
		var lastMode string
		for evt := range ch {
			var fu events.FeedUpdated
			if err := evt.Decode(&fu); err != nil {
				continue
			}
			switch {
			case fu.Error != "" && fu.Stale:
				r.printf("\n! feed refresh failed, showing saved recommendations\n")
			case fu.Error != "":
				r.printf("\n! feed unavailable: %s\n", fu.Error)
			case fu.Mode != lastMode && fu.Personalized:
				r.printf("\n* Recommendations are now personalized for you. Try /recs\n")
			}
			if fu.Error == "" {
				lastMode = fu.Mode
			}
		}
	}()
	return nil
}
