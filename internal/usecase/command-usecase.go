package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/internal/tools"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
	"github.com/iamvkosarev/websearch-chat/pkg/tavily"
)

const (
	CommandPrefix = "/"
	CommandGen    = "gen"
	CommandSearch = "search"

	PollinationsURL = "https://pollinations.ai/prompt/"

	MessageGenUsage         = "Please provide a description of the image you want to generate."
	MessageConfigureAPIKey  = "Please add your OpenAI API key in the settings to use this feature."
	MessageSearchUsage      = "Please provide a search query."
	MessageSearchingFormat  = "Searching the web for \"%s\"... The summary will follow shortly."
	MessageSearchFailed     = "Search failed: %s"
	MessageSummarizeFailed  = "Sorry, I couldn't summarize the search results. Please check your API settings and try again."
	messageUnknownCmdFormat = "Unknown command: /%s. Available commands: %s"

	enhancerMaxTokens = 200
	enhancerPrompt    = `You are an expert AI image generation prompt enhancer. When I provide an image prompt, your goal is to rewrite it to be more detailed, descriptive, and effective for AI image generation, specifically for use with services like Pollinations. Incorporate algorithmically beneficial terms and descriptive language to maximize image quality and accuracy.

Your output should be a URL in the following format: ` + "`https://pollinations.ai/prompt/<enhanced-prompt>`" + `, where ` + "`<enhanced-prompt>`" + ` is the rewritten, improved image generation prompt.`
)

// CommandResult is what a slash command produced. A Direct reply is stored as the
// assistant answer; otherwise Reply is sent through a normal turn. FollowUp, when
// set, yields one more assistant message for the same chat once it completes.
type CommandResult struct {
	Reply    string
	Direct   bool
	FollowUp func(ctx context.Context) string
}

type CommandSuggestion struct {
	Command     string
	Description string
}

type Command struct {
	Name        string
	Description string
	Execute     func(ctx context.Context, args string) CommandResult
}

type CommandUsecaseDeps struct {
	Store      *store.Store
	Completion CompletionClient
	Searcher   tools.Searcher
}

type CommandUsecase struct {
	CommandUsecaseDeps
	enhancerModel string
	commands      []Command
	index         map[string]Command
}

func NewCommandUsecase(deps CommandUsecaseDeps, enhancerModel string) (*CommandUsecase, error) {
	c := &CommandUsecase{
		CommandUsecaseDeps: deps,
		enhancerModel:      enhancerModel,
	}
	commands := []Command{
		{
			Name:        CommandGen,
			Description: "Generate an image using Pollinations AI",
			Execute:     c.generateImage,
		},
		{
			Name:        CommandSearch,
			Description: "Search the web and summarize the results",
			Execute:     c.search,
		},
	}

	c.index = make(map[string]Command, len(commands))
	for _, cmd := range commands {
		if cmd.Name == "" || cmd.Execute == nil {
			return nil, fmt.Errorf("command %q is incomplete", cmd.Name)
		}
		if _, ok := c.index[cmd.Name]; ok {
			return nil, fmt.Errorf("command %q is registered twice", cmd.Name)
		}
		c.index[cmd.Name] = cmd
	}
	c.commands = commands
	return c, nil
}

func IsCommand(input string) bool {
	return strings.HasPrefix(input, CommandPrefix)
}

// Execute runs a slash command. Names are case-sensitive; an unknown name yields the
// help text as the message to send.
func (c *CommandUsecase) Execute(ctx context.Context, input string) CommandResult {
	name, args, _ := strings.Cut(strings.TrimPrefix(input, CommandPrefix), " ")
	cmd, ok := c.index[name]
	if !ok {
		return CommandResult{Reply: fmt.Sprintf(messageUnknownCmdFormat, name, c.available())}
	}
	return cmd.Execute(ctx, args)
}

// Suggestions lists commands whose name starts with the typed prefix, ignoring case.
func (c *CommandUsecase) Suggestions(input string) []CommandSuggestion {
	if !IsCommand(input) {
		return nil
	}
	term := strings.ToLower(strings.TrimPrefix(input, CommandPrefix))
	suggestions := make([]CommandSuggestion, 0, len(c.commands))
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd.Name, term) {
			suggestions = append(
				suggestions, CommandSuggestion{
					Command:     CommandPrefix + cmd.Name,
					Description: cmd.Description,
				},
			)
		}
	}
	return suggestions
}

func (c *CommandUsecase) Commands() []Command {
	return append([]Command(nil), c.commands...)
}

func (c *CommandUsecase) available() string {
	names := make([]string, 0, len(c.commands))
	for _, cmd := range c.commands {
		names = append(names, CommandPrefix+cmd.Name)
	}
	return strings.Join(names, ", ")
}

func (c *CommandUsecase) generateImage(ctx context.Context, prompt string) CommandResult {
	if strings.TrimSpace(prompt) == "" {
		return CommandResult{Reply: MessageGenUsage, Direct: true}
	}

	enhanced, err := c.enhancePrompt(ctx, prompt)
	if err != nil {
		return CommandResult{Reply: MessageConfigureAPIKey, Direct: true}
	}
	return CommandResult{
		Reply:  fmt.Sprintf("%s %s\n%s%s", ImageReplyPrefix, prompt, PollinationsURL, encodeURIComponent(enhanced)),
		Direct: true,
	}
}

// enhancePrompt only fails on a missing API key; any other problem falls back to
// the prompt as typed.
func (c *CommandUsecase) enhancePrompt(ctx context.Context, prompt string) (string, error) {
	settings := c.Store.Settings()
	if settings.APIKey == "" {
		return "", model.ErrMissingAPIKey
	}

	reply, err := c.Completion.Complete(
		ctx, model.CompletionRequest{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   c.enhancerModel,
			Messages: []model.Message{
				{Role: model.MessageRoleSystem, Content: enhancerPrompt},
				{Role: model.MessageRoleUser, Content: prompt},
			},
			Temperature: turnTemperature,
			MaxTokens:   enhancerMaxTokens,
		},
	)
	if err != nil {
		slog.WarnContext(ctx, "Failed to enhance image prompt", logger.Err(err))
		return prompt, nil
	}

	enhanced := strings.TrimSpace(reply.Content)
	enhanced = strings.Trim(enhanced, "`")
	if rest, ok := strings.CutPrefix(enhanced, PollinationsURL); ok {
		if unescaped, err := url.PathUnescape(rest); err == nil {
			rest = unescaped
		}
		enhanced = strings.TrimSpace(rest)
	}
	if enhanced == "" {
		return prompt, nil
	}
	return enhanced, nil
}

func (c *CommandUsecase) search(_ context.Context, query string) CommandResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return CommandResult{Reply: MessageSearchUsage, Direct: true}
	}
	if c.Store.Settings().TavilyAPIKey == "" {
		c.Store.RequestConfiguration(model.ErrMissingSearchAPIKey.Error())
		return CommandResult{Reply: tavily.ErrMissingAPIKey.Error(), Direct: true}
	}
	return CommandResult{
		Reply:  fmt.Sprintf(MessageSearchingFormat, query),
		Direct: true,
		FollowUp: func(ctx context.Context) string {
			return c.searchAndSummarize(ctx, query)
		},
	}
}

func (c *CommandUsecase) searchAndSummarize(ctx context.Context, query string) string {
	settings := c.Store.Settings()
	resp, err := c.Searcher.Search(ctx, settings.TavilyAPIKey, query)
	if err != nil {
		slog.WarnContext(ctx, "Search command failed", "query", query, logger.Err(err))
		return fmt.Sprintf(MessageSearchFailed, err)
	}
	if settings.APIKey == "" {
		return MessageConfigureAPIKey
	}

	chatModel := model.FallbackModel
	if chat, err := c.Store.CurrentChat(); err == nil {
		chatModel = settings.EffectiveModel(chat)
	} else if settings.PinnedModel != "" {
		chatModel = settings.PinnedModel
	}

	reply, err := c.Completion.Complete(
		ctx, model.CompletionRequest{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   chatModel,
			Messages: []model.Message{
				{Role: model.MessageRoleSystem, Content: settings.SearchPrompt},
				{
					Role:    model.MessageRoleUser,
					Content: fmt.Sprintf("Query: %s\n\nSearch results:\n%s", query, tools.FormatResults(resp.Results)),
				},
			},
			Temperature: turnTemperature,
			TopP:        turnTopP,
			MaxTokens:   turnMaxTokens,
		},
	)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			c.Store.RequestConfiguration(MessageInvalidAPIKey)
			return MessageInvalidAPIKey
		}
		slog.ErrorContext(ctx, "Failed to summarize search results", "query", query, logger.Err(err))
		return MessageSummarizeFailed
	}
	if strings.TrimSpace(reply.Content) == "" {
		return MessageSummarizeFailed
	}
	return reply.Content
}

func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
