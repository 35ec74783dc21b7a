package cmd

import (
	_ "flowkeeper/cmd/root"
	_ "flowkeeper/cmd/status"
	_ "flowkeeper/cmd/workflow"
	_ "flowkeeper/workflows"
)
