package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/uptrace/bun"
)

const maxNicknameRunes = 24

var (
	nicknameAdjectives = []string{
		"brave", "calm", "clever", "eager", "gentle", "happy", "jolly", "kind",
		"lively", "lucky", "merry", "nimble", "proud", "quiet", "rapid", "sunny",
		"swift", "witty", "bold", "bright",
	}
	nicknameNouns = []string{
		"otter", "falcon", "panda", "tiger", "whale", "fox", "heron", "koala",
		"lynx", "maple", "comet", "river", "cedar", "pebble", "harbor", "meadow",
		"sparrow", "badger", "willow", "summit",
	}
)

// NewRandomNicknameGenerator returns a generator of adjective-noun-number
// nicknames. It makes no uniqueness promise.
func NewRandomNicknameGenerator() NicknameGenerator {
	return NicknameGeneratorFunc(func() string {
		return fmt.Sprintf("%s%s%04d",
			pick(nicknameAdjectives),
			capitalize(pick(nicknameNouns)),
			randomInt(10000),
		)
	})
}

type nicknameAllocator struct {
	accounts    Accounts
	generator   NicknameGenerator
	maxAttempts int
}

// allocateTx returns a nickname not used by any live account. preferred is
// tried first, then suffixed variants of it, then generated ones.
func (n nicknameAllocator) allocateTx(ctx context.Context, tx bun.IDB, preferred string) (string, error) {
	preferred = sanitizeNickname(preferred)
	attempts := n.maxAttempts
	if attempts <= 0 {
		attempts = DefaultNicknameMaxAttempts
	}

	if preferred != "" {
		taken, err := n.accounts.NicknameTakenTx(ctx, tx, preferred)
		if err != nil {
			return "", err
		}
		if !taken {
			return preferred, nil
		}
	}

	for i := 0; i < attempts; i++ {
		candidate := n.generator.Generate()
		if preferred != "" {
			candidate = fmt.Sprintf("%s%04d", truncateRunes(preferred, maxNicknameRunes-4), randomInt(10000))
		}
		candidate = sanitizeNickname(candidate)
		if candidate == "" {
			continue
		}

		taken, err := n.accounts.NicknameTakenTx(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", withSource(ErrNicknameExhausted, nil, map[string]any{
		"attempts":  attempts,
		"preferred": preferred,
	})
}

// profileNickname picks display name, then given name, then the local part
// of the email.
func profileNickname(user *OAuthUser) string {
	if user == nil {
		return ""
	}
	for _, candidate := range []string{user.DisplayName, user.GivenName, emailLocalPart(user.Email)} {
		if c := sanitizeNickname(candidate); c != "" {
			return c
		}
	}
	return ""
}

func emailLocalPart(email string) string {
	email = strings.TrimSpace(email)
	if at := strings.LastIndex(email, "@"); at > 0 {
		return email[:at]
	}
	return ""
}

func sanitizeNickname(s string) string {
	s = strings.Join(strings.Fields(s), "")
	return truncateRunes(s, maxNicknameRunes)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

func pick(words []string) string {
	return words[randomInt(len(words))]
}

func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
