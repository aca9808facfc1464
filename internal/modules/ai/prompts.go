package ai

import (
	"fmt"

	"github.com/yapper-space/core/internal/autocomment"
)

var toneGuides = map[autocomment.Tone]string{
	autocomment.ToneFriendly:     "warm and friendly",
	autocomment.ToneProfessional: "polite and professional",
	autocomment.ToneCasual:       "relaxed and casual",
	autocomment.ToneSupportive:   "encouraging and supportive",
}

func buildCommentPrompt(content string, tone autocomment.Tone) (systemPrompt, prompt string) {
	systemPrompt = "You write replies to tweets. Answer with the reply text only: no quotes, no hashtags unless the tweet uses them, no explanations."
	prompt = fmt.Sprintf(
		"I am a Twitter user replying to this tweet as a newcomer to the topic. Write one short, on-point reply in English with a %s tone. Reply to nothing else.\n\nTweet:\n%s",
		toneGuides[tone], content,
	)
	return systemPrompt, prompt
}

func buildTweetsPrompt(request string) (systemPrompt, prompt string) {
	systemPrompt = "You write tweets. Answer with the tweets only, one per line, without explanations."
	prompt = fmt.Sprintf("Write 10 tweets in English for the following request: %s", request)
	return systemPrompt, prompt
}
