// Package stream reads and writes patch streams.
//
// A stream is a sequence of frames in server-sent-events framing:
//
//	event: patchwire-patch-elements
//	data: selector #feed
//	data: mode append
//	data: elements <li>first line
//	data: elements second line</li>
//
// Each data line carries a key and a value separated by one space. Lines
// with the same key are joined with newlines. A frame made only of comment
// lines (":") is a keep-alive.
//
// A Consumer reads frames off the loop, decodes them and posts each event
// to the loop in stream order. Consumers report their terminal state and
// never reconnect. Events of different streams interleave in arrival order;
// there is no ordering across streams, so the last applied patch wins.
package stream
