// Package stream turns an unbounded stream of microphone audio into bounded
// chunks for a blocking batch transcription model.
//
// A Session owns two execution contexts. The producer calls AddAudio at any
// cadence; frames are downmixed, resampled to 16 kHz, screened by a zero-tail
// VAD check and appended to an IngestionBuffer. A single background loop
// drains the buffer into a working window, runs the model over the whole
// window, reconciles token output into text and either emits a partial
// message (window kept) or a final message (window truncated at the cut
// token). Messages are handed to a Sink; Dispatcher delivers them
// asynchronously so the loop never waits on the consumer.
package stream
