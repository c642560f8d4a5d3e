package handlers

import "time"

// testJobDuration is how long the TEST handler sleeps before
// returning, per spec.md §4.H ("sleeps ~10s"). It exists purely for
// plumbing verification of the poll/claim/dispatch/report pipeline.
const testJobDuration = 10 * time.Second

// Test implements the TEST job type.
func Test(rawCtx interface{}, rawInput interface{}) (interface{}, error) {
	ctx := rawCtx.(*Context)
	ctx.clock().Sleep(testJobDuration)
	return TestOutput{}, nil
}
