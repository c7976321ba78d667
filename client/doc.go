// Package client drives a code generation worker over a genwire bus.
//
// A Client sends one GeneratorRequest at a time and waits for the matching
// GeneratorResponse:
//
//	p, err := client.Start(ctx, "genwire", []string{"worker"})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	resp, err := p.Generate(ctx, &protocol.GeneratorRequest{
//	    RootDirectory:     ".",
//	    DocumentFileNames: files,
//	})
//	switch {
//	case genwire.IsCanceled(err):
//	    // ctx ended; the client is idle again
//	case genwire.IsTransportClosed(err):
//	    // the worker exited or its stream broke
//	}
//
//	_ = p.Shutdown(ctx) // ask the worker to exit
//
// Shutdown only sends the close message. Close disposes the client: it
// fails a pending Generate with genwire.ErrDisposed and closes the streams.
package client
