// Package pool
// Author: momentics <momentics@gmail.com>
//
// Object pooling for processors and I/O buffers. ProcessorPool recycles
// processor instances across requests; BufferPool recycles fixed-size read
// buffers for the blocking client.
package pool
