// Package directory resolves chat senders to users and ranks users against a
// free-text name or email.
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"

	"taskbot/internal/domain"
	"taskbot/internal/repo"
)

// ErrNotLinked means no enabled user carries the sender's phone number.
var ErrNotLinked = errors.New("phone not linked to a user")

// DefaultLimit is the candidate count offered for disambiguation.
const DefaultLimit = 3

// phoneDigits is how many trailing digits identify a sender.
const phoneDigits = 10

const (
	scoreExact       = 100
	scoreNamePrefix  = 50
	scoreEmailPrefix = 45
	scoreInName      = 40
	scoreInEmail     = 30
	scoreOverlap     = 20
	bonusShortName   = 5
	searchPool       = 100
)

type Directory struct {
	Repo repo.Repo
}

func New(r repo.Repo) Directory {
	return Directory{Repo: r}
}

// ResolveByPhone matches the last ten digits of the number against the end of
// each stored mobile, ignoring spaces, dashes and a leading plus. Shorter
// numbers never resolve.
func (d Directory) ResolveByPhone(ctx context.Context, phone string) (domain.User, error) {
	digits := NormalizePhone(phone)
	if len(digits) < phoneDigits {
		return domain.User{}, ErrNotLinked
	}
	digits = digits[len(digits)-phoneDigits:]
	u, err := d.Repo.FindUserByMobile(ctx, digits)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrNotLinked
	}
	return u, err
}

func (d Directory) Get(ctx context.Context, id string) (domain.User, error) {
	return d.Repo.GetUser(ctx, id)
}

// Search returns at most limit users ranked against term. An exact email or
// full-name match is returned alone.
func (d Directory) Search(ctx context.Context, term string, limit int) ([]domain.User, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if u, err := d.Repo.FindUserByEmail(ctx, term); err == nil {
		return []domain.User{u}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if u, err := d.Repo.FindUserByFullName(ctx, term); err == nil {
		return []domain.User{u}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	users, err := d.Repo.ListUsers(ctx, repo.UserFilters{EnabledOnly: true, UserType: "System User", Limit: searchPool})
	if err != nil {
		return nil, err
	}
	return Rank(term, users, limit), nil
}

type scored struct {
	user  domain.User
	score int
}

// Rank orders users by Score, dropping non-matches. Ties go to the shorter
// full name.
func Rank(term string, users []domain.User, limit int) []domain.User {
	term = strings.ToLower(strings.TrimSpace(term))
	var hits []scored
	for _, u := range users {
		if s := Score(term, u); s > 0 {
			hits = append(hits, scored{user: u, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		li, lj := len(hits[i].user.FullName), len(hits[j].user.FullName)
		if li != lj {
			return li < lj
		}
		return hits[i].user.ID < hits[j].user.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]domain.User, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.user)
	}
	return out
}

// Score rates how well a lowered term matches a user; zero is no match.
func Score(term string, u domain.User) int {
	name := strings.ToLower(u.FullName)
	email := strings.ToLower(u.Email)
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	if term == name || term == email {
		return scoreExact
	}
	score := 0
	for _, part := range strings.Fields(name) {
		if strings.HasPrefix(part, term) {
			score += scoreNamePrefix
			break
		}
	}
	if name != "" && strings.Contains(name, term) {
		score += scoreInName
	}
	if local != "" {
		if strings.HasPrefix(local, term) {
			score += scoreEmailPrefix
		} else if strings.Contains(local, term) {
			score += scoreInEmail
		}
	}
	if score == 0 && overlaps(term, name) {
		score += scoreOverlap
	}
	if score > 0 && len(name) < 20 {
		score += bonusShortName
	}
	return score
}

// overlaps reports whether at least four fifths of the term's distinct
// letters appear in s. Terms shorter than three letters never overlap.
func overlaps(term, s string) bool {
	seen := map[rune]bool{}
	for _, r := range term {
		if unicode.IsLetter(r) {
			seen[r] = true
		}
	}
	if len(seen) < 3 {
		return false
	}
	hit := 0
	for r := range seen {
		if strings.ContainsRune(s, r) {
			hit++
		}
	}
	return hit*5 >= len(seen)*4
}

// NormalizePhone strips spaces, dashes and plus signs.
func NormalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", "+", "").Replace(phone)
}
