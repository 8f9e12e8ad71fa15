package root

import (
	migratecmd "github.com/zenGate-Global/appraisal-saas/apps/cli/cmd/migrate"
	tenantcmd "github.com/zenGate-Global/appraisal-saas/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(migratecmd.Command())
	Root().AddCommand(tenantcmd.Command())
}
