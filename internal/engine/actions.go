package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/confessbot/internal/store"
)

// ErrUnknownAction means a callback carried a tag the engine does not
// dispatch. Distinct from a silent no-op so stale or forged buttons are
// visible in logs.
var ErrUnknownAction = errors.New("engine: unknown action tag")

// Period selects the trailing time window for leaderboard and
// my-confessions views.
type Period string

const (
	PeriodDay  Period = "day"
	PeriodWeek Period = "week"
	PeriodAll  Period = "all"
)

// Window returns the trailing duration for the period; zero means unbounded.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Action is a decoded interactive-control tag. The set is closed: every
// variant the bot ever attaches to a keyboard is listed here, and
// ParseAction refuses anything else.
type Action interface {
	isAction()
}

// ChooseCategory picks a category during the confession flow.
type ChooseCategory struct {
	Name string
}

// Cancel aborts whatever flow the user is in.
type Cancel struct{}

// React records a typed reaction on a confession.
type React struct {
	Type         store.ReactionType
	ConfessionID int64
}

// ViewComments asks for a confession's comments by DM.
type ViewComments struct {
	ConfessionID int64
}

// GiveComment asks for a deep link to comment on a confession.
type GiveComment struct {
	ConfessionID int64
}

// ShowLeaderboard renders a leaderboard period.
type ShowLeaderboard struct {
	Period Period
}

// ShowMyConfessions renders the caller's own confessions for a period.
type ShowMyConfessions struct {
	Period Period
}

func (ChooseCategory) isAction()    {}
func (Cancel) isAction()            {}
func (React) isAction()             {}
func (ViewComments) isAction()      {}
func (GiveComment) isAction()       {}
func (ShowLeaderboard) isAction()   {}
func (ShowMyConfessions) isAction() {}

// ParseAction decodes a colon-delimited callback tag into its Action
// variant. Unknown or malformed tags return ErrUnknownAction.
func ParseAction(data string) (Action, error) {
	switch {
	case data == "cancel_confession":
		return Cancel{}, nil

	case strings.HasPrefix(data, "category:"):
		name := strings.TrimPrefix(data, "category:")
		if name == "" {
			return nil, fmt.Errorf("%w: empty category in %q", ErrUnknownAction, data)
		}
		return ChooseCategory{Name: name}, nil

	case strings.HasPrefix(data, "react:"):
		parts := strings.Split(data, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: malformed react tag %q", ErrUnknownAction, data)
		}
		typ := store.ReactionType(parts[1])
		if !typ.Valid() {
			return nil, fmt.Errorf("%w: reaction type in %q", ErrUnknownAction, data)
		}
		id, err := parseID(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: confession id in %q", ErrUnknownAction, data)
		}
		return React{Type: typ, ConfessionID: id}, nil

	case strings.HasPrefix(data, "viewcomments:"):
		id, err := parseID(strings.TrimPrefix(data, "viewcomments:"))
		if err != nil {
			return nil, fmt.Errorf("%w: confession id in %q", ErrUnknownAction, data)
		}
		return ViewComments{ConfessionID: id}, nil

	case strings.HasPrefix(data, "givecomment:"):
		id, err := parseID(strings.TrimPrefix(data, "givecomment:"))
		if err != nil {
			return nil, fmt.Errorf("%w: confession id in %q", ErrUnknownAction, data)
		}
		return GiveComment{ConfessionID: id}, nil

	case strings.HasPrefix(data, "leaderboard:"):
		period := Period(strings.TrimPrefix(data, "leaderboard:"))
		if period != PeriodDay && period != PeriodWeek {
			return nil, fmt.Errorf("%w: leaderboard period in %q", ErrUnknownAction, data)
		}
		return ShowLeaderboard{Period: period}, nil

	case strings.HasPrefix(data, "my_confessions:"):
		period := Period(strings.TrimPrefix(data, "my_confessions:"))
		if period != PeriodDay && period != PeriodWeek && period != PeriodAll {
			return nil, fmt.Errorf("%w: my_confessions period in %q", ErrUnknownAction, data)
		}
		return ShowMyConfessions{Period: period}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, data)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}
