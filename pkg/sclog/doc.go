// Package sclog turns a live Star Citizen game log into structured
// combat events.
//
// This package allows you to:
//   - Tail the game's append-only log across truncation and rotation
//   - Extract kill, death, destruction and session events from log lines
//   - Correlate a vehicle's destruction with the death of its pilot
//   - Fan finalized events out to audit, storage and streaming sinks
//   - Define additional event patterns via YAML configuration
//
// # Basic Usage
//
// To monitor the game log in real time:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	pipeline, err := sclog.NewPipeline(
//	    sclog.WithLogDir(`C:\Program Files\Roberts Space Industries\StarCitizen\LIVE`),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Close()
//
//	events, errs, err := pipeline.Watch(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    select {
//	    case ev, ok := <-events:
//	        if !ok {
//	            return
//	        }
//	        if !ev.Replayed {
//	            fmt.Println(ev.Description)
//	        }
//	    case err, ok := <-errs:
//	        if !ok {
//	            return
//	        }
//	        log.Printf("error: %v", err)
//	    }
//	}
//
// On startup the pipeline performs one silent replay of the file's
// existing content so history can be rebuilt; those events carry
// Replayed=true and consumers must not raise live notifications for
// them.
//
// # Sinks
//
// Implement the [Sink] interface to receive every finalized event:
//
//	type Sink interface {
//	    Deliver(ctx context.Context, ev event.Finalized) error
//	}
//
// Sink failures are isolated: one failing branch never blocks delivery
// to the others.
//
// # YAML Pattern Files
//
// For additional patterns without code, use the [pattern] subpackage
// together with WithPatternFile:
//
//	pipeline, err := sclog.NewPipeline(sclog.WithPatternFile("patterns.yaml"))
//
// # Platform Support
//
// Log discovery knows the standard Windows install locations; on other
// platforms pass the directory or file explicitly.
//
// # Disclaimer
//
// This is an unofficial tool and is not affiliated with Cloud Imperium
// Games.
package sclog
