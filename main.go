// Command docprobe discovers, downloads, and uploads numbered dataset files.
//
// Every pass (scan, download, upload) feeds a work queue through a bounded
// worker pool. Outcomes are folded into a checkpoint that is saved
// periodically and on exit, so an interrupted pass resumes without
// repeating settled work. A run of consecutive failures trips a circuit
// breaker and stops dispatch.
//
// Quick start:
//   - docprobe scan --dataset 9 --center EFTA01622053 --resume
//   - docprobe download data-set-9.json --dry-run
//   - docprobe upload --bucket my-bucket
//   - docprobe inventory unique --dir .
//
// Settings come from config.yaml in ., /etc/docprobe/ or $HOME/.docprobe,
// overridden by DOCPROBE_* environment variables and then by flags.
package main

import (
	"github.com/JakeFAU/docprobe/cmd"
)

func main() {
	cmd.Execute()
}
