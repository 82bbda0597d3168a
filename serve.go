package main

import (
	"context"

	"github.com/mjl-/mex/mexvar"
	"github.com/mjl-/mex/mlog"
	"github.com/mjl-/mex/store"
	"github.com/mjl-/mex/webapi"
)

func cmdServe(c *cmd) {
	c.help = `Start mex, serving the HTTP API.

Serves the sherpa API at /api/, raw message extraction at /extract and
prometheus metrics at /metrics, on the configured listen address. If an admin
password file is configured, the API endpoints require HTTP basic auth with
user name "admin".

Incoming state is stored in the data directory.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	static := mustLoadConfig()

	log := mlog.New("serve")
	log.Print("starting up", mlog.Field("version", mexvar.Version))

	db, err := store.Open(context.Background(), static.DataDir)
	xcheckf(err, "opening attachment database")
	defer db.Close()

	err = webapi.Serve(static, db)
	xcheckf(err, "serving http")
}
