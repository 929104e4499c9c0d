package main

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// maxBodyExcerpt bounds the body prefix embedded in a summary
const maxBodyExcerpt = 100

var summaryTemplates = []string{
	`Just sent you an email about "%s". Quick summary: %s...`,
	`Hey! Email sent regarding "%s". Brief overview: %s...`,
	`Email update: "%s" - Here's the gist: %s...`,
	`Sent you something about "%s". In short: %s...`,
	`FYI: Email titled "%s" sent to your inbox. It covers: %s...`,
	`Quick note: Just emailed you about "%s". Main points: %s...`,
}

var summaryRand = struct {
	sync.Mutex
	*rand.Rand
}{Rand: rand.New(rand.NewSource(rand.Int63()))}

// summarize turns a subject and body into a short notification message. The
// body is whitespace-normalized and truncated, and one of a few phrasings is
// picked at random so repeated notifications don't read like a bot.
func summarize(subject, body string) string {
	excerpt := strings.Join(strings.Fields(body), " ")
	if runes := []rune(excerpt); len(runes) > maxBodyExcerpt {
		excerpt = string(runes[:maxBodyExcerpt])
	}

	summaryRand.Lock()
	template := summaryTemplates[summaryRand.Intn(len(summaryTemplates))]
	summaryRand.Unlock()

	return fmt.Sprintf(template, subject, excerpt)
}
