package notify

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/crewlane/guildsync/internal/gateway"
	"github.com/crewlane/guildsync/internal/webapp"
)

// Embed accent colors per template kind.
const (
	colorCreated   = 0x2ecc71
	colorAssigned  = 0x3498db
	colorCompleted = 0x9b59b6
	colorComment   = 0x95a5a6
	colorFile      = 0xe67e22
	colorTime      = 0x1abc9c
	colorRemoved   = 0xe74c3c
)

func taskEmbed(title string, color int, task webapp.Task) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.TrimSpace(task.Title),
		Color:       color,
	}
	if task.Description != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Details", Value: truncate(task.Description, 1024),
		})
	}
	if task.Status != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Status", Value: task.Status, Inline: true,
		})
	}
	if task.Priority != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Priority", Value: task.Priority, Inline: true,
		})
	}
	if task.DueDate != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Due", Value: task.DueDate.Format("2006-01-02"), Inline: true,
		})
	}
	if task.URL != "" {
		embed.URL = task.URL
	}
	return embed
}

// TaskCreated is the live task card posted to the project's tasks channel.
func TaskCreated(task webapp.Task) gateway.Message {
	return gateway.Message{Embed: taskEmbed("Task created", colorCreated, task)}
}

// TaskUpdated is the replacement task card after a task-updated event.
func TaskUpdated(task webapp.Task) gateway.Message {
	return gateway.Message{Embed: taskEmbed("Task updated", colorCreated, task)}
}

// TaskAssigned is the additive assignment notice for the channel.
func TaskAssigned(task webapp.Task, assigneeName string) gateway.Message {
	name := strings.TrimSpace(assigneeName)
	if name == "" {
		name = "someone"
	}
	return gateway.Message{
		Content: fmt.Sprintf("Task assigned to %s", name),
		Embed:   taskEmbed("Task assigned", colorAssigned, task),
	}
}

// TaskAssignedDM is the direct message sent to a linked assignee.
func TaskAssignedDM(task webapp.Task, projectName string) gateway.Message {
	content := fmt.Sprintf("You were assigned a task in %s.", strings.TrimSpace(projectName))
	if projectName == "" {
		content = "You were assigned a task."
	}
	return gateway.Message{
		Content: content,
		Embed:   taskEmbed("Task assigned to you", colorAssigned, task),
	}
}

// TaskCompleted announces a completion.
func TaskCompleted(task webapp.Task) gateway.Message {
	return gateway.Message{Embed: taskEmbed("Task completed", colorCompleted, task)}
}

// TaskRemoved is the lightweight audit notice posted after a task card is
// deleted.
func TaskRemoved(taskTitle string) gateway.Message {
	title := strings.TrimSpace(taskTitle)
	if title == "" {
		title = "a task"
	}
	return gateway.Message{
		Embed: &discordgo.MessageEmbed{
			Title:       "Task removed",
			Description: truncate(title, 2048),
			Color:       colorRemoved,
		},
	}
}

// CommentAdded announces a new comment on a task.
func CommentAdded(taskTitle, authorName, excerpt string) gateway.Message {
	return gateway.Message{
		Embed: &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("New comment on %s", truncate(taskTitle, 180)),
			Description: truncate(excerpt, 1024),
			Color:       colorComment,
			Footer:      embedFooter(authorName),
		},
	}
}

// FileUploaded announces an uploaded file.
func FileUploaded(projectName, fileName, authorName string) gateway.Message {
	return gateway.Message{
		Embed: &discordgo.MessageEmbed{
			Title:       "File uploaded",
			Description: fmt.Sprintf("%s in %s", truncate(fileName, 512), truncate(projectName, 256)),
			Color:       colorFile,
			Footer:      embedFooter(authorName),
		},
	}
}

// TimeLogged announces a logged time entry.
func TimeLogged(taskTitle string, minutes int, authorName string) gateway.Message {
	return gateway.Message{
		Embed: &discordgo.MessageEmbed{
			Title:       "Time logged",
			Description: fmt.Sprintf("%dh %02dm on %s", minutes/60, minutes%60, truncate(taskTitle, 512)),
			Color:       colorTime,
			Footer:      embedFooter(authorName),
		},
	}
}

func embedFooter(authorName string) *discordgo.MessageEmbedFooter {
	if strings.TrimSpace(authorName) == "" {
		return nil
	}
	return &discordgo.MessageEmbedFooter{Text: strings.TrimSpace(authorName)}
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}
