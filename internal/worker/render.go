package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/notifyhub/workitems/internal/domain"
)

const signature = "Best regards,\nTask Manager"

// Render builds the subject and plain-text body for a job. Title and
// priority come from the item as it is now; the statuses come from the job.
func Render(job domain.NotificationJob, item *domain.WorkItem) (subject, body string) {
	var b strings.Builder

	if job.Reason == domain.ReasonOverdueReminder {
		subject = fmt.Sprintf("%s Overdue: %s", job.Kind, item.Title)
		fmt.Fprintf(&b, "Hello,\n\n%s %q is past its due date.\n\n", job.Kind, item.Title)
		if item.DueAt != nil {
			fmt.Fprintf(&b, "Due: %s\n", item.DueAt.UTC().Format(time.RFC1123))
		}
		fmt.Fprintf(&b, "Status: %s\nPriority: %s\n\n%s\n", item.Status, item.Priority, signature)
		return subject, b.String()
	}

	subject = fmt.Sprintf("%s Status Changed: %s", job.Kind, item.Title)
	fmt.Fprintf(&b, "Hello,\n\nThe status of %s %q has been changed.\n\n", job.Kind, item.Title)
	fmt.Fprintf(&b, "Previous Status: %s\nNew Status: %s\n\n", job.Previous, job.New)
	fmt.Fprintf(&b, "%s Details:\n- Title: %s\n- Priority: %s\n- Status: %s\n\n", job.Kind, item.Title, item.Priority, job.New)
	b.WriteString(signature + "\n")
	return subject, b.String()
}
