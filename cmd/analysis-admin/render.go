package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	"github.com/target/mmk-analysis-api/internal/service"
	"github.com/target/mmk-analysis-api/internal/util"
)

const timeLayout = "2006-01-02 15:04:05"

// render prints v as indented JSON under --json, otherwise calls table.
func (cc *commandContext) render(cmd *cobra.Command, v any, table func()) error {
	if !cc.JSON {
		table()
		return nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	return t
}

func renderJobs(w io.Writer, jobs []*model.AnalysisJob) {
	t := newTable(w, "ID", "ORG", "STATUS", "REPOSITORY", "BRANCH", "RETRIES", "ERROR CODE", "RUNTIME", "CREATED")
	for _, j := range jobs {
		t.Append([]string{
			j.ID,
			j.OrganizationID,
			string(j.Status),
			j.RepositoryURL,
			deref(j.Branch),
			strconv.Itoa(j.RetryCount),
			deref(j.ErrorCode),
			util.FormatDuration(util.Runtime(j.StartedAt, j.CompletedAt)),
			j.CreatedAt.UTC().Format(timeLayout),
		})
	}
	t.Render()
	fmt.Fprintf(w, "%d job(s)\n", len(jobs))
}

func renderStats(w io.Writer, s *model.AnalysisJobStats) {
	t := newTable(w, "STATUS", "COUNT")
	t.Append([]string{string(model.AnalysisStatusPending), strconv.Itoa(s.Pending)})
	t.Append([]string{string(model.AnalysisStatusProcessing), strconv.Itoa(s.Processing)})
	t.Append([]string{string(model.AnalysisStatusCompleted), strconv.Itoa(s.Completed)})
	t.Append([]string{string(model.AnalysisStatusFailed), strconv.Itoa(s.Failed)})
	t.Render()
}

func renderBulkRetry(w io.Writer, res *model.BulkRetryResult) {
	t := newTable(w, "ID", "RESULT")
	for _, id := range res.Successful {
		t.Append([]string{id, "requeued"})
	}
	for _, f := range res.Failed {
		t.Append([]string{f.ID, f.Error})
	}
	t.Render()
	fmt.Fprintf(w, "%d requeued, %d failed\n", len(res.Successful), len(res.Failed))
}

func renderDeliveries(w io.Writer, list []*model.WebhookDelivery) {
	t := newTable(w, "ID", "EVENT", "STATUS", "ATTEMPTS", "LAST CODE", "LAST ATTEMPT", "NEXT ATTEMPT")
	for _, d := range list {
		code := ""
		if d.Response != nil && d.Response.StatusCode > 0 {
			code = strconv.Itoa(d.Response.StatusCode)
		}
		t.Append([]string{
			d.ID,
			string(d.Event),
			string(d.Status),
			strconv.Itoa(d.Attempts),
			code,
			formatTime(d.LastAttemptAt),
			formatTime(d.NextAttemptAt),
		})
	}
	t.Render()
	fmt.Fprintf(w, "%d deliver(ies)\n", len(list))
}

func renderCleanupReport(w io.Writer, r service.CleanupReport) {
	t := newTable(w, "SWEEP", "ROWS")
	t.Append([]string{"stale processing failed", strconv.FormatInt(r.StaleProcessing, 10)})
	t.Append([]string{"completed jobs deleted", strconv.FormatInt(r.CompletedJobs, 10)})
	t.Append([]string{"failed jobs deleted", strconv.FormatInt(r.FailedJobs, 10)})
	t.Append([]string{"delivered deliveries deleted", strconv.FormatInt(r.DeliveredDelivery, 10)})
	t.Append([]string{"failed deliveries deleted", strconv.FormatInt(r.FailedDeliveries, 10)})
	t.SetFooter([]string{"total", strconv.FormatInt(r.Total(), 10)})
	t.Render()
	fmt.Fprintf(w, "completed in %s\n", util.FormatDuration(r.Elapsed))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
