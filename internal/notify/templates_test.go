package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/crewlane/guildsync/internal/webapp"
)

func TestTaskCreatedEmbedFields(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	msg := TaskCreated(webapp.Task{
		ID:          "task-1",
		Title:       "Ship the release",
		Description: "Cut the tag and publish",
		Status:      "open",
		Priority:    "high",
		DueDate:     &due,
		URL:         "https://app.example.com/tasks/task-1",
	})

	if msg.Embed == nil {
		t.Fatal("task card must carry an embed")
	}
	if msg.Embed.Title != "Task created" {
		t.Fatalf("embed title %q", msg.Embed.Title)
	}
	if msg.Embed.Description != "Ship the release" {
		t.Fatalf("embed description %q", msg.Embed.Description)
	}
	if msg.Embed.URL == "" {
		t.Fatal("embed must deep link to the task")
	}
	names := make([]string, 0, len(msg.Embed.Fields))
	for _, f := range msg.Embed.Fields {
		names = append(names, f.Name)
	}
	for _, want := range []string{"Details", "Status", "Priority", "Due"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("embed fields %v missing %q", names, want)
		}
	}
}

func TestTaskAssignedFallsBackToSomeone(t *testing.T) {
	t.Parallel()

	msg := TaskAssigned(webapp.Task{Title: "Fix the build"}, "  ")
	if msg.Content != "Task assigned to someone" {
		t.Fatalf("content %q", msg.Content)
	}
}

func TestTaskAssignedDMNamesProject(t *testing.T) {
	t.Parallel()

	msg := TaskAssignedDM(webapp.Task{Title: "Fix the build"}, "Apollo")
	if !strings.Contains(msg.Content, "Apollo") {
		t.Fatalf("dm content %q must name the project", msg.Content)
	}
}

func TestTaskRemovedFallsBackToGenericTitle(t *testing.T) {
	t.Parallel()

	msg := TaskRemoved("")
	if msg.Embed == nil || msg.Embed.Description != "a task" {
		t.Fatalf("unexpected removal notice: %+v", msg.Embed)
	}
}

func TestFileUploadedNamesFileAndAuthor(t *testing.T) {
	t.Parallel()

	msg := FileUploaded("Apollo", "specs.pdf", "Ada")
	if msg.Embed == nil {
		t.Fatal("file notice must carry an embed")
	}
	if !strings.Contains(msg.Embed.Description, "specs.pdf") || !strings.Contains(msg.Embed.Description, "Apollo") {
		t.Fatalf("description %q", msg.Embed.Description)
	}
	if msg.Embed.Footer == nil || msg.Embed.Footer.Text != "Ada" {
		t.Fatalf("footer %+v, want the author", msg.Embed.Footer)
	}
}

func TestTimeLoggedFormatsMinutes(t *testing.T) {
	t.Parallel()

	msg := TimeLogged("Fix the build", 95, "Ada")
	if msg.Embed == nil || !strings.HasPrefix(msg.Embed.Description, "1h 35m") {
		t.Fatalf("description %q, want 1h 35m prefix", msg.Embed.Description)
	}
}

func TestTruncateAddsEllipsis(t *testing.T) {
	t.Parallel()

	got := truncate(strings.Repeat("a", 30), 10)
	if len(got) != 10 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate result %q", got)
	}
	if short := truncate("ok", 10); short != "ok" {
		t.Fatalf("short input must pass through, got %q", short)
	}
}
