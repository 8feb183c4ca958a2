package threat

import (
	"regexp"

	"github.com/dlclark/regexp2"
)

// Exploit-probe paths. Some need lookahead, so they are compiled with
// regexp2 rather than RE2.
var blockedPaths = []string{
	// wordpress
	`^/wordpress`,
	`^/wp-admin`,
	`^/wp-content`,
	`^/wp-includes`,
	`^/wp-login\.php`,
	`^/xmlrpc\.php`,

	// admin panels; /admin/api stays reachable
	`^/admin(?!/api)`,
	`^/administrator`,
	`^/phpmyadmin`,
	`^/pma`,
	`^/mysql`,
	`^/myadmin`,

	// secrets and config
	`^/\.env`,
	`^/\.git`,
	`^/\.svn`,
	`^/\.htaccess`,
	`^/config\.php`,
	`^/configuration\.php`,
	`^/web\.config`,
	`^/database\.yml`,
	`^/settings\.py`,
	`^/composer\.json`,
	`^/package\.json(?!$)`,

	// shells
	`^/shell\.php`,
	`^/cmd\.php`,
	`^/backdoor`,
	`^/c99\.php`,
	`^/r57\.php`,

	// cms
	`^/joomla`,
	`^/drupal`,
	`^/magento`,
	`^/prestashop`,

	// scanners
	`^/cgi-bin`,
	`^/scripts`,
	`^/fckeditor`,
	`^/ckeditor`,
	`^/tinymce`,

	// dumps, backups, archives
	`^.*\.sql$`,
	`^.*\.db$`,
	`^.*\.sqlite$`,
	`^.*\.bak$`,
	`^.*\.backup$`,
	`^.*\.old$`,
	`^.*\.orig$`,
	`^.*~$`,
	`^.*\.zip$`,
	`^.*\.tar$`,
	`^.*\.gz$`,
	`^.*\.rar$`,

	`^/eval-stdin\.php`,
	`^/invokefunction`,
	`^/solr/admin`,
	`^/api/jsonws`,
	`^/Autodiscover`,
	`^/\.well-known/security\.txt$`,
}

// Substrings of lowercased user agents that identify scanners and scripted
// clients.
var blockedAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "metasploit", "burpsuite",
	"nessus", "openvas", "qualys", "acunetix", "zgrab",
	"curl", "wget", "go-http-client", "java/", "perl", "ruby",
	"scanner", "bot", "spider", "crawl", "scraper", "harvest",
	"fetch", "archive", "capture", "extract",
}

// Crawlers that are let through even though they match blockedAgents.
var allowedAgents = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot", "facebookexternalhit",
	"twitterbot", "linkedinbot", "whatsapp", "telegram", "discord",
}

var sqlInjection = []string{
	`(\bunion\b.*\bselect\b|\bselect\b.*\bunion\b)`,
	`(\bdrop\b.*\btable\b|\bdelete\b.*\bfrom\b)`,
	`(\binsert\b.*\binto\b|\bupdate\b.*\bset\b)`,
	`(\bexec\b|\bexecute\b)\s*\(`,
	`(\bscript\b|\balert\b)\s*\(`,
	`[';]--`,
	`\bor\b\s*'?1'?\s*=\s*'?1'?`,
	`\band\b\s*'?1'?\s*=\s*'?1'?`,
	`'?\s*or\s+'?[^']*'?\s*=\s*'`,
	`admin'?\s*--`,
}

var crossSiteScripting = []string{
	`<script[^>]*>`,
	`javascript:`,
	`on\w+\s*=`,
	`<iframe[^>]*>`,
	`<embed[^>]*>`,
	`<object[^>]*>`,
	`eval\s*\(`,
	`expression\s*\(`,
	`vbscript:`,
	`data:text/html`,
}

func compilePaths(patterns []string) []*regexp2.Regexp {
	out := make([]*regexp2.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp2.MustCompile(p, regexp2.IgnoreCase))
	}
	return out
}

func compileQuery(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}
