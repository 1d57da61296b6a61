// Package expiry
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Idle-connection expiration. The generational tracker buckets items by the
// tick in which they were last touched instead of keeping a timer per item:
// an item untouched for one full tick moves to "previous", and on the next
// tick to "obsolete", from where Expired drains it. Eviction therefore happens
// between one and two timeouts after the last touch.
package expiry
