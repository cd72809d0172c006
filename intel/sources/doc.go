// Package sources provides the concrete intelligence source implementations
// registered with the aggregator: the CISA known-exploited-vulnerabilities
// catalog, the NVD CVE database, the Exploit-DB index, the nuclei template
// index, and the Metasploit module catalog.
//
// Every source is an independent HTTP client with its own timeout and
// optional rate limiter. Priorities are assigned here, once, from the fixed
// ranking table in types; downstream layers only sort.
package sources
