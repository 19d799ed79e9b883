// Package stream implements continuous data acquisition from instruments that
// push or are polled for repeated readings.
//
// A Source produces raw frames; a Reader runs the source in a background task
// and buffers frames in a bounded ring. When the consumer falls behind, the
// oldest frames are dropped and counted, so slow consumers see fresh data
// instead of an ever-growing backlog:
//
//	reader, _ := stream.NewReader(stream.NewLineSource(backend))
//	_ = reader.Start(ctx)
//	defer reader.Stop()
//
//	for {
//		frame, err := reader.Next(ctx)
//		if err != nil {
//			break
//		}
//		process(frame)
//	}
package stream
