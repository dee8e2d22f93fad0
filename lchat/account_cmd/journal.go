package account_cmd

import (
	"time"

	"github.com/lunfardo314/ledgerchat/lchat/glb"
	"github.com/spf13/cobra"
)

var (
	journalLimit   int
	journalPending bool
)

func initJournalCmd() *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "displays the local journal of submitted transactions, newest first",
		Args:  cobra.NoArgs,
		Run:   runJournalCmd,
	}
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "maximum number of records")
	journalCmd.Flags().BoolVarP(&journalPending, "pending", "p", false, "only transactions which are not completed")
	journalCmd.InitDefaultHelpCmd()
	return journalCmd
}

func runJournalCmd(_ *cobra.Command, _ []string) {
	s := glb.NewSession()
	defer s.Close()

	records := s.Journal.Records(journalLimit)
	if journalPending {
		records = s.Journal.Pending()
	}
	if glb.OutputYAML() {
		glb.PrintYAML(records)
		return
	}
	if len(records) == 0 {
		glb.Infof("journal is empty")
		return
	}
	for _, r := range records {
		glb.Infof("%s  %-20s %-10s %s", r.SubmittedAt.Format(time.DateTime), r.Op, r.Status, r.TxHash)
		if r.Error != "" {
			glb.Infof("      %s: %s", r.ErrorKind, r.Error)
		}
	}
}
