// Package worker serves generation requests on the worker side of a
// genwire stream pair, typically the worker process's stdin and stdout.
//
//	srv := worker.NewServer(os.Stdin, os.Stdout, gen)
//	if err := srv.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
package worker
