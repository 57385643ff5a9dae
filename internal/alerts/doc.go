// Package alerts implements the rule evaluation engine and webhook delivery
// for line alerts. Rules are evaluated against analysed line results;
// webhooks are delivered to Teams, Slack or generic HTTP targets.
package alerts
