/*
Package gradersdk is a client for the LTI relay's HTTP API.

# Overview

The relay exposes three kinds of endpoint: the LTI launch receiver, the
grading endpoint used by activity pages, and the health probes. SDKClient
wraps all of them:

	client := gradersdk.NewSDKClient("https://tools.example.edu")

	// Check service health
	health, err := client.GetReadiness(ctx)

	// Replay an LTI launch and pick up the session token
	launch, err := client.Launch(ctx, params, "https://lms.example.edu")

	// Grade a submission against that session
	resp, err := client.Grade(ctx, gradersdk.GradeRequest{
		StudentInput: essay,
		SessionToken: launch.Token,
	})

# Errors

Non-2xx responses come back as *APIError carrying the status code and the
decoded error message, so callers can branch with errors.As:

	var apiErr *gradersdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		// back off
	}

A grading failure reported by the service (success=false with a 200) is not
an error at the transport level; check GradeResponse.Success.
*/
package gradersdk
